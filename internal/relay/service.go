package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	"github.com/samvad-hq/gallery-relay/internal/logger"
	"github.com/samvad-hq/gallery-relay/internal/metrics"
	"github.com/samvad-hq/gallery-relay/internal/storage"
	"github.com/samvad-hq/gallery-relay/pkg/publishers"
)

// Deps are the collaborators a Service drives.
type Deps struct {
	Source    GallerySource
	Store     storage.Store
	Pipeline  *Pipeline
	Host      Host
	Messenger Messenger
	Formatter MessageFormatter
	// Events is optional.
	Events  EventPublisher
	Log     logger.Logger
	Metrics *metrics.Metrics
}

// Options scopes the galleries a Service looks at and where it announces them.
type Options struct {
	ChannelID    string
	SearchParams string
	SearchPages  int
}

// CycleStats counts the decisions taken during one cycle.
type CycleStats map[Decision]int

// Service runs polling cycles: it walks the visible galleries in source order and
// drives exactly the side effects each classification calls for.
type Service struct {
	source    GallerySource
	store     storage.Store
	pipeline  *Pipeline
	host      Host
	messenger Messenger
	formatter MessageFormatter
	events    EventPublisher
	opts      Options
	log       logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService validates deps and builds a Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("gallery source must not be nil")
	case deps.Store == nil:
		return nil, fmt.Errorf("store must not be nil")
	case deps.Host == nil:
		return nil, fmt.Errorf("host must not be nil")
	case deps.Messenger == nil:
		return nil, fmt.Errorf("messenger must not be nil")
	case deps.Formatter == nil:
		return nil, fmt.Errorf("formatter must not be nil")
	}
	if opts.SearchPages <= 0 {
		return nil, fmt.Errorf("search pages must be positive")
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewUnregistered()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = NewPipeline(deps.Source, deps.Host, deps.Store, nil, PipelineOptions{}, deps.Log, deps.Metrics)
	}

	return &Service{
		source:    deps.Source,
		store:     deps.Store,
		pipeline:  deps.Pipeline,
		host:      deps.Host,
		messenger: deps.Messenger,
		formatter: deps.Formatter,
		events:    deps.Events,
		opts:      opts,
		log:       logger.Ensure(deps.Log),
		metrics:   deps.Metrics,
		now:       time.Now,
	}, nil
}

// RunCycle processes every visible gallery once, sequentially. The first
// gallery-level failure aborts the rest of the cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := make(CycleStats)

	for ref, err := range s.source.Search(ctx, s.opts.SearchParams, s.opts.SearchPages) {
		if err != nil {
			return stats, fmt.Errorf("list galleries: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		decision, err := s.ProcessGallery(ctx, ref)
		if err != nil {
			return stats, fmt.Errorf("gallery %s: %w", ref, err)
		}
		stats[decision]++
	}

	return stats, nil
}

// ProcessGallery classifies one gallery and applies the matching side effects.
func (s *Service) ProcessGallery(ctx context.Context, ref domain.GalleryRef) (Decision, error) {
	stored, found, err := s.store.FindGallery(ctx, ref.ID)
	if err != nil {
		return 0, fmt.Errorf("lookup gallery: %w", err)
	}
	if found && stored.Deleted {
		s.metrics.Galleries.WithLabelValues(DecisionSkipDeleted.String()).Inc()
		return DecisionSkipDeleted, nil
	}

	detail, err := s.source.Gallery(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("fetch gallery detail: %w", err)
	}

	var current *domain.Gallery
	if found {
		current = &stored
	}
	decision := Classify(current, detail)

	switch decision {
	case DecisionCreate:
		err = s.publish(ctx, detail)
	case DecisionUpdate:
		err = s.update(ctx, stored, detail)
	}
	if err != nil {
		return decision, err
	}

	s.metrics.Galleries.WithLabelValues(decision.String()).Inc()
	if decision != DecisionUnchanged {
		s.log.InfoObj("gallery synchronized", "gallery_sync", map[string]any{
			"gallery_id": ref.ID,
			"decision":   decision.String(),
			"title":      detail.Title,
		})
	}
	return decision, nil
}

// publish uploads a new gallery, creates its article and announcement, then
// persists the Message and Gallery rows.
func (s *Service) publish(ctx context.Context, detail domain.GalleryDetail) error {
	galleryID := detail.Ref.ID

	// A message without a gallery row means an earlier run stopped right after
	// announcing; finish that run instead of announcing twice.
	if msg, found, err := s.store.FindMessageByGallery(ctx, galleryID); err != nil {
		return fmt.Errorf("lookup message: %w", err)
	} else if found {
		return s.saveGallery(ctx, detail, msg)
	}

	res, err := s.pipeline.Run(ctx, detail)
	if err != nil {
		return fmt.Errorf("upload pages: %w", err)
	}
	if res.Failed > 0 {
		s.log.WarnObj("gallery published with missing pages", "gallery_partial", map[string]any{
			"gallery_id": galleryID,
			"pages":      len(detail.Pages),
			"failed":     res.Failed,
		})
	}

	images, err := s.store.ListGalleryImages(ctx, galleryID)
	if err != nil {
		return fmt.Errorf("list gallery images: %w", err)
	}
	articleURL, err := s.host.CreateArticle(ctx, detail.ArticleTitle(), BuildArticleHTML(images, len(detail.Pages)))
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}

	text := s.formatter.Format(detail, articleURL)
	messageID, err := s.messenger.SendMessage(ctx, s.opts.ChannelID, text)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	msg := domain.Message{ID: messageID, GalleryID: galleryID, ArticleURL: articleURL}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return s.saveGallery(ctx, detail, msg)
}

func (s *Service) saveGallery(ctx context.Context, detail domain.GalleryDetail, msg domain.Message) error {
	gallery := detail.ToGallery()
	gallery.UpdatedAt = s.now().UTC()
	if err := s.store.CreateGallery(ctx, gallery); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}

	pages, err := s.store.ListPages(ctx, gallery.ID)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	s.emit(ctx, publishers.NewEvent(publishers.EventGalleryCreated, gallery, msg, len(pages)))
	return nil
}

// update edits the existing announcement in place and records the new metadata.
func (s *Service) update(ctx context.Context, stored domain.Gallery, detail domain.GalleryDetail) error {
	msg, found, err := s.store.FindMessageByGallery(ctx, stored.ID)
	if err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if !found {
		return fmt.Errorf("message for gallery %d: %w", stored.ID, domain.ErrNotFound)
	}

	text := s.formatter.Format(detail, msg.ArticleURL)
	if err := s.messenger.EditMessage(ctx, s.opts.ChannelID, msg.ID, text); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	stored.Title = detail.Title
	stored.TitleAlt = detail.TitleAlt
	stored.Tags = append([]domain.Tag(nil), detail.Tags...)
	stored.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateGallery(ctx, stored); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}

	s.emit(ctx, publishers.NewEvent(publishers.EventGalleryUpdated, stored, msg, stored.PageCount))
	return nil
}

// MarkDeleted flags a stored gallery so later cycles skip it.
func (s *Service) MarkDeleted(ctx context.Context, galleryID int64) error {
	if err := s.store.MarkGalleryDeleted(ctx, galleryID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("gallery %d was never published: %w", galleryID, err)
		}
		return fmt.Errorf("mark gallery %d deleted: %w", galleryID, err)
	}
	s.log.InfoObj("gallery marked deleted", "gallery_id", galleryID)
	return nil
}

// emit notifies downstream sinks; failures never affect the cycle.
func (s *Service) emit(ctx context.Context, evt publishers.Event) {
	if s.events == nil {
		return
	}
	delivered, err := s.events.Publish(ctx, evt)
	if err != nil {
		s.log.WarnObj("relay event delivery failed", "event_error", map[string]any{
			"gallery_id": evt.GalleryID,
			"kind":       evt.Kind,
			"delivered":  delivered,
			"error":      err.Error(),
		})
	}
}
