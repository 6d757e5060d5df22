package relay

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// ImageLookup resolves an image by its content hash.
type ImageLookup interface {
	FindImageByHash(ctx context.Context, hash string) (domain.Image, bool, error)
}

// Deduplicator decides whether a page's bytes are already hosted. Image rows never
// change once written, so positive answers are cached; misses always hit the store.
type Deduplicator struct {
	images ImageLookup
	hits   *cache.Cache
}

// NewDeduplicator builds a deduplicator; ttl <= 0 disables the hit cache.
func NewDeduplicator(images ImageLookup, ttl time.Duration) *Deduplicator {
	d := &Deduplicator{images: images}
	if ttl > 0 {
		d.hits = cache.New(ttl, 2*ttl)
	}
	return d
}

// FindByContentHash returns the hosted image for hash, if any.
func (d *Deduplicator) FindByContentHash(ctx context.Context, hash string) (domain.Image, bool, error) {
	if d.hits != nil {
		if v, ok := d.hits.Get(hash); ok {
			return v.(domain.Image), true, nil
		}
	}

	img, found, err := d.images.FindImageByHash(ctx, hash)
	if err != nil || !found {
		return domain.Image{}, false, err
	}
	d.Remember(img)
	return img, true, nil
}

// Remember records a freshly created image so later lookups skip the store.
func (d *Deduplicator) Remember(img domain.Image) {
	if d.hits == nil || img.ContentHash == "" {
		return
	}
	d.hits.SetDefault(img.ContentHash, img)
}
