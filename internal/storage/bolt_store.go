package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	galleryBucket   = "galleries"
	imageBucket     = "images"
	imageHashBucket = "image_hashes"
	pageBucket      = "pages"
	messageBucket   = "messages"

	idBytes      = 8
	pageKeyBytes = idBytes + 4
)

var allBuckets = []string{galleryBucket, imageBucket, imageHashBucket, pageBucket, messageBucket}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) FindGallery(_ context.Context, id int64) (domain.Gallery, bool, error) {
	var (
		g     domain.Gallery
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(galleryBucket)).Get(encodeID(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &g)
	})
	if err != nil {
		return domain.Gallery{}, false, domain.Persistence("find gallery", err)
	}
	return g, found, nil
}

func (b *boltStore) CreateGallery(_ context.Context, g domain.Gallery) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(galleryBucket))
		key := encodeID(g.ID)
		if bucket.Get(key) != nil {
			return fmt.Errorf("gallery %d: %w", g.ID, domain.ErrDuplicate)
		}
		return putJSON(bucket, key, g)
	})
	return domain.Persistence("create gallery", err)
}

func (b *boltStore) UpdateGallery(_ context.Context, g domain.Gallery) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(galleryBucket))
		key := encodeID(g.ID)
		if bucket.Get(key) == nil {
			return fmt.Errorf("gallery %d: %w", g.ID, domain.ErrNotFound)
		}
		return putJSON(bucket, key, g)
	})
	return domain.Persistence("update gallery", err)
}

func (b *boltStore) MarkGalleryDeleted(_ context.Context, id int64) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(galleryBucket))
		key := encodeID(id)
		raw := bucket.Get(key)
		if raw == nil {
			return fmt.Errorf("gallery %d: %w", id, domain.ErrNotFound)
		}
		var g domain.Gallery
		if err := json.Unmarshal(raw, &g); err != nil {
			return err
		}
		g.Deleted = true
		return putJSON(bucket, key, g)
	})
	return domain.Persistence("mark gallery deleted", err)
}

func (b *boltStore) FindImageByHash(_ context.Context, hash string) (domain.Image, bool, error) {
	var (
		img   domain.Image
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket([]byte(imageHashBucket)).Get([]byte(hash))
		if id == nil {
			return nil
		}
		raw := tx.Bucket([]byte(imageBucket)).Get(id)
		if raw == nil {
			return fmt.Errorf("image hash %s points at missing image", hash)
		}
		found = true
		return json.Unmarshal(raw, &img)
	})
	if err != nil {
		return domain.Image{}, false, domain.Persistence("find image", err)
	}
	return img, found, nil
}

func (b *boltStore) CreateImage(_ context.Context, hash, remoteURL string) (domain.Image, error) {
	var img domain.Image
	err := b.db.Update(func(tx *bolt.Tx) error {
		hashes := tx.Bucket([]byte(imageHashBucket))
		if hashes.Get([]byte(hash)) != nil {
			return fmt.Errorf("image %s: %w", hash, domain.ErrDuplicate)
		}
		images := tx.Bucket([]byte(imageBucket))
		seq, err := images.NextSequence()
		if err != nil {
			return err
		}
		img = domain.Image{ID: int64(seq), ContentHash: hash, RemoteURL: remoteURL}
		key := encodeID(img.ID)
		if err := putJSON(images, key, img); err != nil {
			return err
		}
		return hashes.Put([]byte(hash), key)
	})
	if err != nil {
		return domain.Image{}, domain.Persistence("create image", err)
	}
	return img, nil
}

func (b *boltStore) CreatePage(_ context.Context, p domain.Page) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		imageKey := encodeID(p.ImageID)
		if tx.Bucket([]byte(imageBucket)).Get(imageKey) == nil {
			return fmt.Errorf("page %d/%d image %d: %w", p.GalleryID, p.Index, p.ImageID, domain.ErrNotFound)
		}
		pages := tx.Bucket([]byte(pageBucket))
		key := encodePageKey(p.GalleryID, p.Index)
		if pages.Get(key) != nil {
			return fmt.Errorf("page %d/%d: %w", p.GalleryID, p.Index, domain.ErrDuplicate)
		}
		return pages.Put(key, imageKey)
	})
	return domain.Persistence("create page", err)
}

func (b *boltStore) ListPages(_ context.Context, galleryID int64) ([]domain.Page, error) {
	var out []domain.Page
	err := b.db.View(func(tx *bolt.Tx) error {
		return scanPages(tx, galleryID, func(p domain.Page) error {
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, domain.Persistence("list pages", err)
	}
	return out, nil
}

func (b *boltStore) ListGalleryImages(_ context.Context, galleryID int64) ([]domain.Image, error) {
	var out []domain.Image
	err := b.db.View(func(tx *bolt.Tx) error {
		images := tx.Bucket([]byte(imageBucket))
		return scanPages(tx, galleryID, func(p domain.Page) error {
			raw := images.Get(encodeID(p.ImageID))
			if raw == nil {
				return fmt.Errorf("page %d/%d references missing image %d", p.GalleryID, p.Index, p.ImageID)
			}
			var img domain.Image
			if err := json.Unmarshal(raw, &img); err != nil {
				return err
			}
			out = append(out, img)
			return nil
		})
	})
	if err != nil {
		return nil, domain.Persistence("list gallery images", err)
	}
	return out, nil
}

func (b *boltStore) FindMessageByGallery(_ context.Context, galleryID int64) (domain.Message, bool, error) {
	var (
		msg   domain.Message
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(messageBucket)).Get(encodeID(galleryID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &msg)
	})
	if err != nil {
		return domain.Message{}, false, domain.Persistence("find message", err)
	}
	return msg, found, nil
}

func (b *boltStore) CreateMessage(_ context.Context, msg domain.Message) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(messageBucket))
		key := encodeID(msg.GalleryID)
		if bucket.Get(key) != nil {
			return fmt.Errorf("message for gallery %d: %w", msg.GalleryID, domain.ErrDuplicate)
		}
		return putJSON(bucket, key, msg)
	})
	return domain.Persistence("create message", err)
}

// scanPages walks a gallery's pages in index order; keys are big-endian so the
// cursor order matches the page order.
func scanPages(tx *bolt.Tx, galleryID int64, fn func(domain.Page) error) error {
	prefix := encodeID(galleryID)
	cursor := tx.Bucket([]byte(pageBucket)).Cursor()
	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		if len(k) != pageKeyBytes || len(v) != idBytes {
			return fmt.Errorf("malformed page entry for gallery %d", galleryID)
		}
		page := domain.Page{
			GalleryID: galleryID,
			Index:     int(binary.BigEndian.Uint32(k[idBytes:])),
			ImageID:   int64(binary.BigEndian.Uint64(v)),
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func putJSON(bucket *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, raw)
}

func encodeID(id int64) []byte {
	buf := make([]byte, idBytes)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func encodePageKey(galleryID int64, index int) []byte {
	buf := make([]byte, pageKeyBytes)
	binary.BigEndian.PutUint64(buf, uint64(galleryID))
	binary.BigEndian.PutUint32(buf[idBytes:], uint32(index))
	return buf
}
