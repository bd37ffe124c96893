package stages_test

import (
	"context"
	"testing"

	"xaio/internal/ledger"
	"xaio/internal/services"
	"xaio/internal/stage"
	"xaio/internal/stages"
)

type scriptedPublisher struct {
	lastKey    string
	lastRecord stages.Document
	id         string
	err        error
}

func (s *scriptedPublisher) Upsert(ctx context.Context, itemKey string, record stages.Document) (string, error) {
	s.lastKey = itemKey
	s.lastRecord = record
	return s.id, s.err
}

func TestPublishUpsertsByItemKeyAndEmitsReceipt(t *testing.T) {
	publisher := &scriptedPublisher{id: "wp-42"}
	adapter := stages.NewPublish(publisher)

	out, err := adapter.Transform(context.Background(), stage.Input{
		Item:         ledger.Item{ID: "item-1", CanonicalKey: "https://example.com/a"},
		UpstreamHash: "merged-hash",
		Upstream:     []byte(`{"title":"A Story"}`),
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if publisher.lastKey != "item-1" {
		t.Fatalf("expected upsert keyed by item id, got %q", publisher.lastKey)
	}
	if publisher.lastRecord["title"] != "A Story" {
		t.Fatalf("expected merged record forwarded, got %v", publisher.lastRecord)
	}
	if out.PublishID != "wp-42" {
		t.Fatalf("expected publish id surfaced, got %q", out.PublishID)
	}

	receipt := out.Document.(stages.Document)
	if receipt["publish_id"] != "wp-42" || receipt["record_sha256"] != "merged-hash" {
		t.Fatalf("unexpected receipt: %v", receipt)
	}
}

func TestPublishRejectsEmptyID(t *testing.T) {
	adapter := stages.NewPublish(&scriptedPublisher{id: ""})

	_, err := adapter.Transform(context.Background(), stage.Input{
		Item:     ledger.Item{ID: "item-1"},
		Upstream: []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected error for empty publish id")
	}
	if services.Classify(err) != services.KindValidation {
		t.Fatalf("expected validation classification, got %s", services.Classify(err))
	}
}
