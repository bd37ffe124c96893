package intake

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource is an in-memory Source seeded with raw URLs. It backs direct
// CLI ingestion and tests; status writes are recorded, not forwarded.
type StaticSource struct {
	mu       sync.Mutex
	rows     []NewItem
	statuses map[string]string
}

// NewStaticSource builds a source from raw URLs. External ids are synthesized
// from list position.
func NewStaticSource(urls []string) *StaticSource {
	rows := make([]NewItem, 0, len(urls))
	for i, raw := range urls {
		rows = append(rows, NewItem{
			ExternalID:   fmt.Sprintf("static-%d", i+1),
			CanonicalKey: raw,
		})
	}
	return &StaticSource{rows: rows, statuses: make(map[string]string)}
}

func (s *StaticSource) ListNewItems(ctx context.Context) ([]NewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]NewItem, len(s.rows))
	copy(rows, s.rows)
	return rows, nil
}

func (s *StaticSource) MarkStatus(ctx context.Context, externalID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[externalID] = status
	return nil
}

// Status reports the last status recorded for an external id.
func (s *StaticSource) Status(externalID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[externalID]
}
