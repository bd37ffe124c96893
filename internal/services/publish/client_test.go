package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"xaio/internal/services"
	"xaio/internal/stages"
)

func TestUpsertSendsRecordAndReturnsID(t *testing.T) {
	var captured upsertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pub-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"wp-7"}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, APIKey: "pub-key", PostStatus: "draft"})
	id, err := client.Upsert(context.Background(), "item-1", stages.Document{"title": "A Story"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if id != "wp-7" {
		t.Fatalf("unexpected id %q", id)
	}
	if captured.ExternalKey != "item-1" || captured.Status != "draft" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Record["title"] != "A Story" {
		t.Fatalf("expected record forwarded, got %v", captured.Record)
	}
}

func TestUpsertRejectsResponseWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":""}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.Upsert(context.Background(), "item-1", stages.Document{})
	if err == nil {
		t.Fatal("expected error for missing id")
	}
	if got := services.Classify(err); got != services.KindValidation {
		t.Fatalf("expected validation classification, got %s", got)
	}
}

func TestUpsertClassifiesHTTPFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   services.Kind
	}{
		{"rejected record", http.StatusUnprocessableEntity, services.KindValidation},
		{"cms down", http.StatusBadGateway, services.KindTransient},
		{"bad key", http.StatusUnauthorized, services.KindConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(Config{Endpoint: server.URL})
			_, err := client.Upsert(context.Background(), "item-1", stages.Document{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.Classify(err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
