package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a stage record.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var allStatuses = []Status{StatusPending, StatusRunning, StatusDone, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Item is one unit of intake work, identified by a content-derived key.
// Items are immutable once created and never deleted.
type Item struct {
	ID           string
	CanonicalKey string
	SourceID     string
	PublishID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Record is the persisted status of one work item at one stage.
type Record struct {
	ItemID       string
	Stage        string
	Status       Status
	Version      int64
	Attempts     int
	InputHash    string
	ArtifactHash string
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is one audit snapshot taken at transition time.
type HistoryEntry struct {
	ItemID       string
	Stage        string
	Status       Status
	Version      int64
	Attempts     int
	InputHash    string
	ArtifactHash string
	ErrorKind    string
	ErrorMessage string
	RecordedAt   time.Time
}

// Eligible pairs an item with the upstream artifact hash it should consume.
type Eligible struct {
	ItemID       string
	UpstreamHash string
}

// StageCounts aggregates record counts per status for one stage.
type StageCounts struct {
	Stage   string
	Pending int
	Running int
	Done    int
	Failed  int
}
