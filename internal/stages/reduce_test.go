package stages_test

import (
	"context"
	"encoding/json"
	"testing"

	"xaio/internal/services"
	"xaio/internal/stage"
	"xaio/internal/stages"
)

func transformReduce(t *testing.T, capture map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(capture)
	if err != nil {
		t.Fatalf("marshal capture: %v", err)
	}
	out, err := stages.NewReduce("prompt-v1").Transform(context.Background(), stage.Input{
		UpstreamHash: "capture-hash",
		Upstream:     raw,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	envelope, ok := out.Document.(stages.Document)
	if !ok {
		t.Fatalf("unexpected document type %T", out.Document)
	}
	return envelope
}

func TestReduceBuildsEnvelope(t *testing.T) {
	envelope := transformReduce(t, map[string]any{
		"url": map[string]any{
			"original": "https://example.com/story?utm_source=feed&id=7",
			"final":    "https://Example.com/story?id=7",
		},
		"page": map[string]any{
			"title": "A Story",
			"meta": map[string]any{
				"og:site_name": "Example News",
				"og:image":     "https://example.com/banner.png",
			},
		},
		"content": map[string]any{
			"text": "one two three",
		},
		"fetch": map[string]any{
			"method": "browser",
		},
	})

	if envelope["prompt_set_id"] != "prompt-v1" {
		t.Fatalf("expected prompt set id, got %v", envelope["prompt_set_id"])
	}

	source := envelope["source"].(stages.Document)
	if source["capture_sha256"] != "capture-hash" {
		t.Fatalf("expected capture hash in source block, got %v", source["capture_sha256"])
	}

	urls := envelope["url"].(stages.Document)
	if urls["original"] != "https://example.com/story?id=7" {
		t.Fatalf("expected tracking params stripped, got %v", urls["original"])
	}
	if urls["domain"] != "example.com" {
		t.Fatalf("expected lowercased domain, got %v", urls["domain"])
	}

	page := envelope["page"].(stages.Document)
	meta := page["meta"].(stages.Document)
	if meta["og:site_name"] != "Example News" {
		t.Fatalf("expected whitelisted meta carried, got %v", meta)
	}
	if _, ok := meta["og:image"]; ok {
		t.Fatal("expected non-whitelisted meta dropped")
	}

	content := envelope["content"].(stages.Document)
	if content["extracted_text_full"] != "one two three" {
		t.Fatalf("expected verbatim text, got %v", content["extracted_text_full"])
	}
	if content["word_count"] != 3 {
		t.Fatalf("expected word count 3, got %v", content["word_count"])
	}
	if content["char_count"] != len("one two three") {
		t.Fatalf("expected char count, got %v", content["char_count"])
	}
	if content["text_sha256"] == "" {
		t.Fatal("expected text hash")
	}
}

func TestReduceProbesAlternateFieldPaths(t *testing.T) {
	envelope := transformReduce(t, map[string]any{
		"page": map[string]any{
			"url": "https://example.com/alt",
			"meta": map[string]any{
				"og:title": "Alt Title",
			},
		},
		"extracted_text": "body text",
	})

	urls := envelope["url"].(stages.Document)
	if urls["final"] != "https://example.com/alt" {
		t.Fatalf("expected page.url fallback, got %v", urls["final"])
	}
	page := envelope["page"].(stages.Document)
	if page["title"] != "Alt Title" {
		t.Fatalf("expected og:title fallback, got %v", page["title"])
	}
	content := envelope["content"].(stages.Document)
	if content["extracted_text_full"] != "body text" {
		t.Fatalf("expected extracted_text fallback, got %v", content["extracted_text_full"])
	}
}

func TestReduceRejectsCaptureWithoutURL(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"content": map[string]any{"text": "x"}})
	_, err := stages.NewReduce("prompt-v1").Transform(context.Background(), stage.Input{
		UpstreamHash: "h",
		Upstream:     raw,
	})
	if err == nil {
		t.Fatal("expected error for capture without url")
	}
	if services.Classify(err) != services.KindValidation {
		t.Fatalf("expected validation classification, got %s", services.Classify(err))
	}
}
