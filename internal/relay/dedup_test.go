package relay

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

type countingLookup struct {
	images map[string]domain.Image
	calls  atomic.Int32
}

func (c *countingLookup) FindImageByHash(_ context.Context, hash string) (domain.Image, bool, error) {
	c.calls.Add(1)
	img, ok := c.images[hash]
	return img, ok, nil
}

func TestDeduplicatorCachesHitsOnly(t *testing.T) {
	lookup := &countingLookup{images: map[string]domain.Image{"a": {ID: 1, ContentHash: "a", RemoteURL: "u"}}}
	d := NewDeduplicator(lookup, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		img, found, err := d.FindByContentHash(ctx, "a")
		if err != nil || !found || img.ID != 1 {
			t.Fatalf("unexpected lookup %#v %v %v", img, found, err)
		}
	}
	if got := lookup.calls.Load(); got != 1 {
		t.Fatalf("hits should be cached, store calls=%d", got)
	}

	for i := 0; i < 2; i++ {
		if _, found, _ := d.FindByContentHash(ctx, "missing"); found {
			t.Fatalf("unexpected hit")
		}
	}
	if got := lookup.calls.Load(); got != 3 {
		t.Fatalf("misses must not be cached, store calls=%d", got)
	}

	d.Remember(domain.Image{ID: 2, ContentHash: "b"})
	if img, found, _ := d.FindByContentHash(ctx, "b"); !found || img.ID != 2 {
		t.Fatalf("remembered image not returned")
	}
}

func TestDeduplicatorWithoutCache(t *testing.T) {
	lookup := &countingLookup{images: map[string]domain.Image{"a": {ID: 1, ContentHash: "a"}}}
	d := NewDeduplicator(lookup, 0)
	d.FindByContentHash(context.Background(), "a")
	d.FindByContentHash(context.Background(), "a")
	if got := lookup.calls.Load(); got != 2 {
		t.Fatalf("disabled cache should always hit the store, calls=%d", got)
	}
}

func TestBuildArticleHTML(t *testing.T) {
	got := BuildArticleHTML([]domain.Image{{RemoteURL: "https://h/a.jpg"}, {RemoteURL: "https://h/b.jpg?x=1&y=2"}}, 3)
	want := `<img src="https://h/a.jpg"><img src="https://h/b.jpg?x=1&amp;y=2"><p>Total pages: 3</p>`
	if got != want {
		t.Fatalf("BuildArticleHTML = %q", got)
	}
	if !strings.HasSuffix(BuildArticleHTML(nil, 0), "<p>Total pages: 0</p>") {
		t.Fatalf("empty article should still carry the caption")
	}
}
