package intake_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"xaio/internal/intake"
	"xaio/internal/testsupport"
)

func TestIngestCreatesItemsAndAcknowledges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	source := intake.NewStaticSource([]string{
		"https://example.com/a?utm_source=feed",
		"https://example.com/b",
	})

	created, err := intake.Ingest(context.Background(), source, store, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 items, got %d", created)
	}

	item, err := store.FindItemByKey(context.Background(), "https://example.com/a")
	if err != nil || item == nil {
		t.Fatalf("expected item under cleaned key: %v", err)
	}
	if item.ID != intake.ItemID("https://example.com/a") {
		t.Fatalf("unexpected item id %q", item.ID)
	}
	// The id is the untruncated digest of the canonical key.
	sum := sha256.Sum256([]byte("https://example.com/a"))
	if item.ID != hex.EncodeToString(sum[:]) {
		t.Fatalf("expected full sha256 item id, got %q", item.ID)
	}
	if got := source.Status("static-1"); got != intake.StatusQueued {
		t.Fatalf("expected row marked QUEUED, got %q", got)
	}
}

func TestIngestIsIdempotentAcrossURLVariants(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	first := intake.NewStaticSource([]string{"https://Example.com/a"})
	if _, err := intake.Ingest(context.Background(), first, store, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Same page with tracking noise maps onto the existing item.
	second := intake.NewStaticSource([]string{"https://example.com/a?utm_source=x"})
	created, err := intake.Ingest(context.Background(), second, store, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected duplicate to create nothing, got %d", created)
	}
	if got := second.Status("static-1"); got != intake.StatusQueued {
		t.Fatalf("expected duplicate row still acknowledged, got %q", got)
	}

	items, err := store.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestIngestMarksUnusableRowsFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	source := intake.NewStaticSource([]string{"   "})

	created, err := intake.Ingest(context.Background(), source, store, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no items, got %d", created)
	}
	if got := source.Status("static-1"); got != intake.StatusFailed {
		t.Fatalf("expected row marked FAILED, got %q", got)
	}
}
