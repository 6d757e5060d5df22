package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

type pageKey struct {
	galleryID int64
	index     int
}

// MemoryStore keeps everything in process memory. It enforces the same
// uniqueness rules as the persistent backends.
type MemoryStore struct {
	mu          sync.RWMutex
	galleries   map[int64]domain.Gallery
	images      map[int64]domain.Image
	imageByHash map[string]int64
	pages       map[pageKey]domain.Page
	messages    map[int64]domain.Message
	nextImageID int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		galleries:   make(map[int64]domain.Gallery),
		images:      make(map[int64]domain.Image),
		imageByHash: make(map[string]int64),
		pages:       make(map[pageKey]domain.Page),
		messages:    make(map[int64]domain.Message),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) FindGallery(_ context.Context, id int64) (domain.Gallery, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.galleries[id]
	return cloneGallery(g), ok, nil
}

func (m *MemoryStore) CreateGallery(_ context.Context, g domain.Gallery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.galleries[g.ID]; exists {
		return fmt.Errorf("gallery %d: %w", g.ID, domain.ErrDuplicate)
	}
	m.galleries[g.ID] = cloneGallery(g)
	return nil
}

func (m *MemoryStore) UpdateGallery(_ context.Context, g domain.Gallery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.galleries[g.ID]; !exists {
		return fmt.Errorf("gallery %d: %w", g.ID, domain.ErrNotFound)
	}
	m.galleries[g.ID] = cloneGallery(g)
	return nil
}

func (m *MemoryStore) MarkGalleryDeleted(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, exists := m.galleries[id]
	if !exists {
		return fmt.Errorf("gallery %d: %w", id, domain.ErrNotFound)
	}
	g.Deleted = true
	m.galleries[id] = g
	return nil
}

func (m *MemoryStore) FindImageByHash(_ context.Context, hash string) (domain.Image, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.imageByHash[hash]
	if !ok {
		return domain.Image{}, false, nil
	}
	return m.images[id], true, nil
}

func (m *MemoryStore) CreateImage(_ context.Context, hash, remoteURL string) (domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.imageByHash[hash]; exists {
		return domain.Image{}, fmt.Errorf("image %s: %w", hash, domain.ErrDuplicate)
	}
	m.nextImageID++
	img := domain.Image{ID: m.nextImageID, ContentHash: hash, RemoteURL: remoteURL}
	m.images[img.ID] = img
	m.imageByHash[hash] = img.ID
	return img, nil
}

func (m *MemoryStore) CreatePage(_ context.Context, p domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[p.ImageID]; !ok {
		return fmt.Errorf("page %d/%d image %d: %w", p.GalleryID, p.Index, p.ImageID, domain.ErrNotFound)
	}
	key := pageKey{galleryID: p.GalleryID, index: p.Index}
	if _, exists := m.pages[key]; exists {
		return fmt.Errorf("page %d/%d: %w", p.GalleryID, p.Index, domain.ErrDuplicate)
	}
	m.pages[key] = p
	return nil
}

func (m *MemoryStore) ListPages(_ context.Context, galleryID int64) ([]domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pagesLocked(galleryID), nil
}

func (m *MemoryStore) ListGalleryImages(_ context.Context, galleryID int64) ([]domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := m.pagesLocked(galleryID)
	out := make([]domain.Image, 0, len(pages))
	for _, p := range pages {
		out = append(out, m.images[p.ImageID])
	}
	return out, nil
}

func (m *MemoryStore) pagesLocked(galleryID int64) []domain.Page {
	var out []domain.Page
	for key, p := range m.pages {
		if key.galleryID == galleryID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (m *MemoryStore) FindMessageByGallery(_ context.Context, galleryID int64) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[galleryID]
	return msg, ok, nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.GalleryID]; exists {
		return fmt.Errorf("message for gallery %d: %w", msg.GalleryID, domain.ErrDuplicate)
	}
	m.messages[msg.GalleryID] = msg
	return nil
}

// Counts reports the number of stored images and pages.
func (m *MemoryStore) Counts() (images, pages int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images), len(m.pages)
}

func cloneGallery(g domain.Gallery) domain.Gallery {
	g.Tags = append([]domain.Tag(nil), g.Tags...)
	return g
}
