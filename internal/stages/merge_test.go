package stages_test

import (
	"context"
	"encoding/json"
	"testing"

	"xaio/internal/stage"
	"xaio/internal/stages"
)

func TestMergeCombinesMetaClaimsAndText(t *testing.T) {
	metaArtifact, _ := json.Marshal(map[string]any{
		"canonical_url": "https://example.com/a",
		"title":         "A Story",
		"topics":        []string{"news"},
	})
	lookup := func(ctx context.Context, stageName string) ([]byte, error) {
		switch stageName {
		case stage.Meta:
			return metaArtifact, nil
		case stage.Reduce:
			return envelopeBytes(t), nil
		default:
			t.Fatalf("unexpected lookup stage %q", stageName)
			return nil, nil
		}
	}
	claimsArtifact, _ := json.Marshal(map[string]any{
		"claims": []any{map[string]any{"text": "a claim"}},
	})

	out, err := stages.NewMerge().Transform(context.Background(), stage.Input{
		Upstream: claimsArtifact,
		Lookup:   lookup,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	merged := out.Document.(stages.Document)
	if merged["title"] != "A Story" {
		t.Fatalf("expected meta fields carried, got %v", merged["title"])
	}
	if claims, ok := merged["claims"].([]any); !ok || len(claims) != 1 {
		t.Fatalf("expected claims carried, got %v", merged["claims"])
	}
	if merged["extracted_text_full"] != "full body text" {
		t.Fatalf("expected verbatim envelope text, got %v", merged["extracted_text_full"])
	}
	if merged["word_count"] != float64(3) {
		t.Fatalf("expected envelope word count, got %v", merged["word_count"])
	}
}

func TestMergeDefaultsMissingClaimsToEmptyList(t *testing.T) {
	lookup := func(ctx context.Context, stageName string) ([]byte, error) {
		switch stageName {
		case stage.Meta:
			return []byte(`{"canonical_url":"https://example.com/a"}`), nil
		case stage.Reduce:
			return envelopeBytes(t), nil
		default:
			return nil, nil
		}
	}

	out, err := stages.NewMerge().Transform(context.Background(), stage.Input{
		Upstream: []byte(`{}`),
		Lookup:   lookup,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	merged := out.Document.(stages.Document)
	claims, ok := merged["claims"].([]any)
	if !ok || len(claims) != 0 {
		t.Fatalf("expected empty claims list, got %v", merged["claims"])
	}
}
