package relay

import (
	"context"
	"iter"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	"github.com/samvad-hq/gallery-relay/pkg/publishers"
)

// GallerySource lists visible galleries and fetches their details and page bytes.
type GallerySource interface {
	Search(ctx context.Context, params string, maxPages int) iter.Seq2[domain.GalleryRef, error]
	Gallery(ctx context.Context, ref domain.GalleryRef) (domain.GalleryDetail, error)
	PageDownloader
}

// PageDownloader fetches the raw bytes behind a source page.
type PageDownloader interface {
	PageBytes(ctx context.Context, page domain.SourcePage) ([]byte, error)
}

// ImageUploader stores bytes on the hosting service and returns their remote URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte) (string, error)
}

// Host is the rich-content hosting service.
type Host interface {
	ImageUploader
	CreateArticle(ctx context.Context, title, htmlBody string) (string, error)
}

// Messenger posts and edits announcements in the channel.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) (int64, error)
	EditMessage(ctx context.Context, chatID string, messageID int64, text string) error
}

// MessageFormatter renders the announcement text for a gallery.
type MessageFormatter interface {
	Format(detail domain.GalleryDetail, articleURL string) string
}

// EventPublisher fans relay events out to downstream sinks.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
