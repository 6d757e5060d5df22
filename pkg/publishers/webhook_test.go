package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

func openTestWebhook(t *testing.T, url string, headers map[string]string) Publisher {
	t.Helper()
	sink := SinkConfig{ID: "hook", Type: TypeHTTP, HTTP: &WebhookConfig{URL: url, Headers: headers, TimeoutSeconds: 2}}
	pub, err := openSink(context.Background(), sink, nil)
	if err != nil {
		t.Fatalf("open webhook: %v", err)
	}
	return pub
}

func TestWebhookPostsGalleryEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if h := r.Header.Get("X-Token"); h != "secret" {
			t.Errorf("static header = %q", h)
		}
		if h := r.Header.Get(webhookEventHeader); h != EventGalleryCreated {
			t.Errorf("event header = %q", h)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pub := openTestWebhook(t, srv.URL, map[string]string{"X-Token": " secret ", "X-Empty": " "})
	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got["kind"] != EventGalleryCreated {
		t.Fatalf("kind = %v", got["kind"])
	}
	if got["gallery_id"] != float64(42) {
		t.Fatalf("gallery_id = %v", got["gallery_id"])
	}
	if got["article_url"] != "https://telegra.ph/a" {
		t.Fatalf("article_url = %v", got["article_url"])
	}
	if got["message_id"] != float64(7) {
		t.Fatalf("message_id = %v", got["message_id"])
	}
	if got["pages"] != float64(3) {
		t.Fatalf("pages = %v", got["pages"])
	}
}

func TestWebhookClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"unavailable", http.StatusServiceUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"rejected", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			err := openTestWebhook(t, srv.URL, nil).Publish(context.Background(), sampleEvent())
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}
			if got := errors.Is(err, domain.ErrTransientNetwork); got != tc.transient {
				t.Fatalf("transient=%v got %v (%v)", tc.transient, got, err)
			}
			if !strings.Contains(err.Error(), "nope") {
				t.Fatalf("expected body snippet in %q", err)
			}
		})
	}
}

func TestWebhookUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := openTestWebhook(t, url, nil).Publish(context.Background(), sampleEvent())
	if !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
