package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

func TestCheckStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		err       error
		wantErr   bool
		transient bool
	}{
		{"ok", http.StatusOK, nil, false, false},
		{"transport", 0, errors.New("dial tcp: refused"), true, true},
		{"rate limited", http.StatusTooManyRequests, nil, true, true},
		{"server error", http.StatusBadGateway, nil, true, true},
		{"not found", http.StatusNotFound, nil, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckStatus("fetch", tc.status, []byte("body"), tc.err)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
			if got := errors.Is(err, domain.ErrTransientNetwork); got != tc.transient {
				t.Fatalf("transient=%v got %v (%v)", tc.transient, got, err)
			}
		})
	}
}

func TestSnippetTruncates(t *testing.T) {
	if got := Snippet(nil); got != "<empty>" {
		t.Fatalf("Snippet(nil) = %q", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	if got := Snippet(long); len(got) != 515 {
		t.Fatalf("expected truncated snippet, got len %d", len(got))
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// 511 ASCII bytes then a 3-byte rune straddling the cut.
	body := strings.Repeat("a", 511) + "漢字"
	got := Snippet([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet is not valid UTF-8: %q", got[len(got)-8:])
	}
	if want := strings.Repeat("a", 511) + "..."; got != want {
		t.Fatalf("unexpected snippet tail %q", got[len(got)-8:])
	}
}

func TestRestyClientSendsDefaultHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "relay-test" {
			t.Errorf("user agent = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "a=b" {
			t.Errorf("cookie = %q", got)
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewRestyClient(time.Second, WithUserAgent("relay-test"))
	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"Cookie": "a=b"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusOK || string(resp.Body()) != "hello" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode(), resp.Body())
	}
}
