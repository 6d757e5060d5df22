package domain

import (
	"fmt"
	"strings"
	"time"
)

// Domain contains core models shared by the relay, storage and adapters.

// Tag is a single (namespace, value) pair attached to a gallery.
type Tag struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// Gallery is the persisted record of a published gallery.
type Gallery struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Title     string    `json:"title"`
	TitleAlt  string    `json:"title_alt,omitempty"`
	Tags      []Tag     `json:"tags"`
	PageCount int       `json:"page_count"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Deleted   bool      `json:"deleted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page places an Image at a 1-based position inside a gallery.
type Page struct {
	GalleryID int64 `json:"gallery_id"`
	Index     int   `json:"index"`
	ImageID   int64 `json:"image_id"`
}

// Image is a content-addressed asset already present on the hosting service.
type Image struct {
	ID          int64  `json:"id"`
	ContentHash string `json:"content_hash"`
	RemoteURL   string `json:"remote_url"`
}

// Message is the live channel announcement for a gallery.
type Message struct {
	ID         int64  `json:"id"`
	GalleryID  int64  `json:"gallery_id"`
	ArticleURL string `json:"article_url"`
}

// GalleryRef identifies a gallery visible on the source.
type GalleryRef struct {
	ID    int64
	Token string
}

// String renders the ref as "id/token".
func (r GalleryRef) String() string {
	return fmt.Sprintf("%d/%s", r.ID, r.Token)
}

// SourcePage is one page of a gallery as exposed by the source, before download.
type SourcePage struct {
	GalleryID int64
	Index     int
	Hash      string
	URL       string
}

// GalleryDetail is a freshly fetched snapshot of a gallery and its pages.
type GalleryDetail struct {
	Ref       GalleryRef
	URL       string
	Title     string
	TitleAlt  string
	Tags      []Tag
	ParentID  *int64
	Pages     []SourcePage
	FetchedAt time.Time
}

// ArticleTitle prefers the alternative (original language) title when present.
func (d GalleryDetail) ArticleTitle() string {
	if strings.TrimSpace(d.TitleAlt) != "" {
		return d.TitleAlt
	}
	return d.Title
}

// ToGallery converts the snapshot into a persistable record.
func (d GalleryDetail) ToGallery() Gallery {
	return Gallery{
		ID:        d.Ref.ID,
		Token:     d.Ref.Token,
		Title:     d.Title,
		TitleAlt:  d.TitleAlt,
		Tags:      append([]Tag(nil), d.Tags...),
		PageCount: len(d.Pages),
		ParentID:  d.ParentID,
		UpdatedAt: d.FetchedAt,
	}
}

// TagsEqual compares two tag lists as multisets, ignoring order.
func TagsEqual(a, b []Tag) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Tag]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	for _, t := range b {
		counts[t]--
		if counts[t] < 0 {
			return false
		}
	}
	return true
}
