package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

// Package storage persists galleries, pages, images and channel messages.

// Store is the content store used by the relay. Find* methods report absence through
// the boolean result; uniqueness violations return domain.ErrDuplicate.
type Store interface {
	Close() error

	FindGallery(ctx context.Context, id int64) (domain.Gallery, bool, error)
	CreateGallery(ctx context.Context, g domain.Gallery) error
	UpdateGallery(ctx context.Context, g domain.Gallery) error
	MarkGalleryDeleted(ctx context.Context, id int64) error

	FindImageByHash(ctx context.Context, hash string) (domain.Image, bool, error)
	CreateImage(ctx context.Context, hash, remoteURL string) (domain.Image, error)

	CreatePage(ctx context.Context, p domain.Page) error
	ListPages(ctx context.Context, galleryID int64) ([]domain.Page, error)
	ListGalleryImages(ctx context.Context, galleryID int64) ([]domain.Image, error)

	FindMessageByGallery(ctx context.Context, galleryID int64) (domain.Message, bool, error)
	CreateMessage(ctx context.Context, m domain.Message) error
}

// Options selects and locates the storage backend.
type Options struct {
	Type       string
	BBoltPath  string
	SQLitePath string
}

const (
	TypeMemory = "memory"
	TypeBBolt  = "bbolt"
	TypeSQLite = "sqlite"
)

// NewStore creates the configured storage backend.
func NewStore(opts Options) (Store, error) {
	typ := strings.TrimSpace(strings.ToLower(opts.Type))

	switch typ {
	case TypeMemory:
		return NewMemoryStore(), nil
	case "", TypeBBolt:
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(opts.BBoltPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case TypeSQLite:
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		store, err := openSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}
