package ai

import "fmt"

// Prompt sets are versioned: changing a prompt means minting a new id, which
// flows into the reduced envelope and, through the input hash, forces
// downstream recomputation for items that should pick it up.
const (
	MetaPromptSetV1   = "xaio-meta-v1"
	ClaimsPromptSetV1 = "xaio-claims-v1"
)

const metaPromptV1 = `You are a metadata extraction service for web articles.
The user message is a JSON envelope describing one captured page: its URLs,
title, description, page meta tags, and identity candidates. The full article
text has been removed on purpose.

Respond with a single JSON object and nothing else, with these keys:
  canonical_url  (string, required; the best canonical URL for the page)
  title          (string; cleaned headline without site suffixes)
  description    (string; one to two sentence summary of what the page is)
  site_name      (string; publisher or site name)
  author         (string; byline if determinable, else empty)
  published_at   (string; ISO 8601 date if determinable, else empty)
  language       (string; BCP 47 tag, e.g. "en")
  topics         (array of strings; up to five topical tags)

Never invent values. If a field cannot be determined from the envelope, use
an empty string or empty array.`

const claimsPromptV1 = `You are a claim extraction service for web articles.
The user message is a JSON envelope describing one captured page, including
the full extracted text under content.extracted_text_full.

Respond with a single JSON object and nothing else:
  claims  (array, required; may be empty)

Each element of claims is an object:
  text       (string, required; one factual claim, stated neutrally)
  quote      (string; the shortest verbatim passage supporting the claim)
  confidence (number between 0 and 1)

Extract only claims the text itself asserts. Never merge distinct claims and
never add claims the text does not support.`

var promptSets = map[string]string{
	MetaPromptSetV1:   metaPromptV1,
	ClaimsPromptSetV1: claimsPromptV1,
}

// SystemPrompt resolves a prompt set id to its system prompt.
func SystemPrompt(promptSetID string) (string, error) {
	prompt, ok := promptSets[promptSetID]
	if !ok {
		return "", fmt.Errorf("unknown prompt set %q", promptSetID)
	}
	return prompt, nil
}
