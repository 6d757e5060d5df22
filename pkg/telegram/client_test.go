package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

func newBot(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{APIURL: srv.URL, Token: "123:abc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSendMessage(t *testing.T) {
	c := newBot(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["chat_id"] != "@channel" || body["parse_mode"] != "HTML" || body["text"] != "<b>hi</b>" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":99}}`)
	})

	id, err := c.SendMessage(context.Background(), "@channel", "<b>hi</b>")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 99 {
		t.Fatalf("unexpected id %d", id)
	}
}

func TestEditMessageNotModifiedIsSuccess(t *testing.T) {
	c := newBot(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/editMessageText" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`)
	})

	if err := c.EditMessage(context.Background(), "@channel", 5, "same"); err != nil {
		t.Fatalf("expected not-modified to be success, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rejected", http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, domain.ErrServiceRejection},
		{"rate limited", http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, domain.ErrTransientNetwork},
		{"gateway", http.StatusBadGateway, `<html>bad gateway</html>`, domain.ErrTransientNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newBot(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.SendMessage(context.Background(), "@channel", "x")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without token")
	}
}
