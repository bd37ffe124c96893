// Package urlnorm cleans and canonicalizes source URLs. Tracking parameters
// and fragments never change page identity, so they are stripped before a URL
// is hashed into a work item key or handed to downstream stages.
package urlnorm

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"utm_name":     {},
	"utm_reader":   {},
	"utm_referrer": {},
	"utm_social":   {},
	"fbclid":       {},
	"gclid":        {},
}

// Clean removes the fragment and common tracking parameters while keeping
// every other query parameter in its original order. Unparseable input is
// returned unchanged; a bad URL is still a usable opaque key.
func Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			key := pair
			if idx := strings.IndexByte(pair, '='); idx >= 0 {
				key = pair[:idx]
			}
			if _, drop := trackingParams[key]; drop {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Canonical produces the stable identity form used for work item keys:
// Clean plus lowercased scheme and host with any credentials dropped.
func Canonical(raw string) string {
	cleaned := Clean(raw)
	if cleaned == "" {
		return ""
	}
	u, err := url.Parse(cleaned)
	if err != nil {
		return cleaned
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.User = nil
	return u.String()
}

// Domain extracts the lowercased hostname without credentials or port.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
