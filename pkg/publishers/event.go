package publishers

import (
	"time"

	"github.com/samvad-hq/gallery-relay/internal/domain"
)

const (
	EventGalleryCreated = "gallery.created"
	EventGalleryUpdated = "gallery.updated"
)

// Event represents the payload published downstream after a gallery is relayed.
type Event struct {
	Kind       string       `json:"kind"`
	GalleryID  int64        `json:"gallery_id"`
	Token      string       `json:"token"`
	Title      string       `json:"title"`
	TitleAlt   string       `json:"title_alt,omitempty"`
	Tags       []domain.Tag `json:"tags"`
	ArticleURL string       `json:"article_url"`
	MessageID  int64        `json:"message_id"`
	Pages      int          `json:"pages"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewEvent constructs an Event for the given gallery + channel message.
func NewEvent(kind string, g domain.Gallery, msg domain.Message, pages int) Event {
	return Event{
		Kind:       kind,
		GalleryID:  g.ID,
		Token:      g.Token,
		Title:      g.Title,
		TitleAlt:   g.TitleAlt,
		Tags:       append([]domain.Tag(nil), g.Tags...),
		ArticleURL: msg.ArticleURL,
		MessageID:  msg.ID,
		Pages:      pages,
		OccurredAt: time.Now().UTC(),
	}
}
