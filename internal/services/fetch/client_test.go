package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"xaio/internal/services"
)

func TestCapturePostsURLAndDecodesDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["url"] != "https://example.com/a" {
			t.Errorf("unexpected url %q", req["url"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":{"title":"A Story"},"content":{"text":"body"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	doc, err := client.Capture(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	page, ok := doc["page"].(map[string]any)
	if !ok || page["title"] != "A Story" {
		t.Fatalf("unexpected document: %v", doc)
	}
}

func TestCaptureClassifiesHTTPFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   services.Kind
	}{
		{"unprocessable page", http.StatusUnprocessableEntity, services.KindValidation},
		{"page gone", http.StatusGone, services.KindValidation},
		{"service overloaded", http.StatusServiceUnavailable, services.KindTransient},
		{"bad credentials", http.StatusForbidden, services.KindConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(Config{Endpoint: server.URL})
			_, err := client.Capture(context.Background(), "https://example.com/a")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.Classify(err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCaptureRequiresEndpoint(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Capture(context.Background(), "https://example.com/a")
	if err == nil {
		t.Fatal("expected error without endpoint")
	}
	if got := services.Classify(err); got != services.KindConfiguration {
		t.Fatalf("expected configuration classification, got %s", got)
	}
}
