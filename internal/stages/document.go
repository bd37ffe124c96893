package stages

import (
	"strings"
)

// Document is a decoded JSON artifact body.
type Document = map[string]any

// getNested resolves dotted paths like "page.meta.og:title" against nested
// maps, returning nil when any segment is missing.
func getNested(doc Document, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// getString resolves a dotted path to a trimmed string, or "".
func getString(doc Document, path string) string {
	return safeString(getNested(doc, path))
}

func safeString(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// firstNonEmpty returns the first path whose value is a non-empty string.
// Capture documents vary across fetcher versions, so every signal is probed
// at several likely locations.
func firstNonEmpty(doc Document, paths ...string) string {
	for _, path := range paths {
		if v := getString(doc, path); v != "" {
			return v
		}
	}
	return ""
}

func uniqueStrings(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, entry := range list {
		s := safeString(entry)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
