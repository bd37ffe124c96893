package stages

import (
	"context"
	"encoding/json"

	"xaio/internal/artifact"
	"xaio/internal/services"
	"xaio/internal/stage"
	"xaio/internal/urlnorm"
)

// metaWhitelist is the small set of page meta keys worth carrying into the
// AI envelope. Dumping the full meta block would blow the prompt budget.
var metaWhitelist = []string{
	"og:title",
	"og:description",
	"og:site_name",
	"og:type",
	"article:published_time",
	"article:modified_time",
	"article:author",
	"parsely-pub-date",
	"twitter:title",
	"twitter:description",
	"description",
	"author",
}

// Reduce condenses a raw capture document into the AI-ready envelope: full
// extracted text kept verbatim, a curated meta whitelist, cleaned URLs, and
// cheap computed stats for dedupe and traceability. It is a pure transform.
type Reduce struct {
	promptSetID string
}

// NewReduce constructs the reduce adapter.
func NewReduce(promptSetID string) *Reduce {
	return &Reduce{promptSetID: promptSetID}
}

func (r *Reduce) Name() string { return stage.Reduce }

func (r *Reduce) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	var capture Document
	if err := json.Unmarshal(in.Upstream, &capture); err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Reduce, "decode capture", "", err)
	}

	sig := extractSignals(capture)
	if sig.finalURL == "" && sig.originalURL == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Reduce, "", "capture document has no url", nil)
	}

	text := sig.extractedText
	envelope := Document{
		"prompt_set_id": r.promptSetID,
		"source": Document{
			"capture_sha256": in.UpstreamHash,
			"fetch_method":   sig.fetchMethod,
		},
		"url": Document{
			"original":  urlnorm.Clean(sig.originalURL),
			"final":     urlnorm.Clean(sig.finalURL),
			"canonical": urlnorm.Clean(sig.canonicalHint),
			"domain":    urlnorm.Domain(sig.finalURL),
		},
		"page": Document{
			"title":             sig.title,
			"description":       sig.description,
			"site_name":         sig.siteName,
			"published_at_hint": sig.publishedAtHint,
			"author_hint":       sig.authorHint,
			"meta":              whitelistMeta(capture),
		},
		"identity_candidates": Document{
			"organization_names": uniqueStrings(getNested(capture, "page.jsonld_extracted.publisher_names")),
			"author_names":       uniqueStrings(getNested(capture, "page.jsonld_extracted.author_names")),
		},
		"content": Document{
			"extracted_text_full": text,
			"char_count":          len(text),
			"word_count":          wordCount(text),
			"text_sha256":         textHash(text),
		},
	}

	return stage.Output{Document: envelope}, nil
}

type captureSignals struct {
	originalURL     string
	finalURL        string
	canonicalHint   string
	title           string
	description     string
	siteName        string
	publishedAtHint string
	authorHint      string
	extractedText   string
	fetchMethod     string
}

// extractSignals probes multiple likely paths per signal to stay robust
// across capture document versions.
func extractSignals(capture Document) captureSignals {
	originalURL := firstNonEmpty(capture, "url.original", "urls.original", "payload.url.original")
	finalURL := firstNonEmpty(capture, "url.final", "urls.final", "fetch.final_url", "page.url")
	if finalURL == "" {
		finalURL = originalURL
	}
	canonical := firstNonEmpty(capture,
		"url.canonical", "urls.canonical", "page.canonical_url", "page.meta.canonical", "page.meta.og:url")
	if canonical == "" {
		canonical = finalURL
	}

	return captureSignals{
		originalURL:   originalURL,
		finalURL:      finalURL,
		canonicalHint: canonical,
		title: firstNonEmpty(capture,
			"page.title", "page.meta.og:title", "page.meta.twitter:title", "title"),
		description: firstNonEmpty(capture,
			"page.description", "page.meta.og:description", "page.meta.description", "description"),
		siteName: firstNonEmpty(capture,
			"page.site_name", "page.meta.og:site_name", "site.name"),
		publishedAtHint: firstNonEmpty(capture,
			"page.published_at", "page.meta.article:published_time", "page.meta.og:published_time",
			"page.meta.parsely-pub-date", "published_at"),
		authorHint: firstNonEmpty(capture,
			"page.byline", "page.author", "page.meta.author", "page.meta.article:author", "author"),
		extractedText: firstNonEmpty(capture,
			"content.text", "content.extracted_text", "extracted_text", "payload.extracted_text"),
		fetchMethod: firstNonEmpty(capture,
			"fetch.method", "payload.fetch.method", "method"),
	}
}

func whitelistMeta(capture Document) Document {
	out := Document{}
	meta, ok := getNested(capture, "page.meta").(map[string]any)
	if !ok {
		return out
	}
	for _, key := range metaWhitelist {
		if v := safeString(meta[key]); v != "" {
			out[key] = v
		}
	}
	return out
}

func textHash(text string) string {
	if text == "" {
		return ""
	}
	return artifact.HashBytes([]byte(text))
}
