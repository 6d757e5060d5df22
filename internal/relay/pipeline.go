package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	"github.com/samvad-hq/gallery-relay/internal/logger"
	"github.com/samvad-hq/gallery-relay/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultDownloadWorkers = 5
	defaultUploadWorkers   = 1
	defaultQueueSize       = 16
)

// PipelineStore is the slice of the content store the pipeline writes to.
type PipelineStore interface {
	ImageLookup
	CreateImage(ctx context.Context, hash, remoteURL string) (domain.Image, error)
	CreatePage(ctx context.Context, p domain.Page) error
	ListPages(ctx context.Context, galleryID int64) ([]domain.Page, error)
}

// PipelineOptions bounds the pipeline's concurrency.
type PipelineOptions struct {
	DownloadWorkers int
	UploadWorkers   int
	QueueSize       int
	// UploadRate caps uploads per second; zero means unlimited.
	UploadRate float64
}

// PipelineResult summarizes one pipeline run. Page counters count pages,
// Downloads/Uploads count payload transfers (pages sharing a hash share one).
type PipelineResult struct {
	Skipped   int
	Reused    int
	Stored    int
	Failed    int
	Downloads int
	Uploads   int
}

// Pipeline materializes every page of a gallery as a hosted image.
type Pipeline struct {
	downloader PageDownloader
	uploader   ImageUploader
	store      PipelineStore
	dedup      *Deduplicator
	opts       PipelineOptions
	limiter    *rate.Limiter
	log        logger.Logger
	metrics    *metrics.Metrics
}

// NewPipeline wires the download and upload stages.
func NewPipeline(downloader PageDownloader, uploader ImageUploader, store PipelineStore, dedup *Deduplicator, opts PipelineOptions, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = defaultDownloadWorkers
	}
	if opts.UploadWorkers <= 0 {
		opts.UploadWorkers = defaultUploadWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if dedup == nil {
		dedup = NewDeduplicator(store, 0)
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}

	p := &Pipeline{
		downloader: downloader,
		uploader:   uploader,
		store:      store,
		dedup:      dedup,
		opts:       opts,
		log:        logger.Ensure(log),
		metrics:    m,
	}
	if opts.UploadRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.UploadRate), 1)
	}
	return p
}

// pageGroup holds the pages of one gallery sharing a content hash.
type pageGroup struct {
	hash  string
	pages []domain.SourcePage
}

type payload struct {
	group pageGroup
	data  []byte
}

// Run persists a Page row for every page of detail that can be materialized.
// Per-page transfer failures are logged and dropped; only store failures are
// returned, after both stages have drained.
func (p *Pipeline) Run(ctx context.Context, detail domain.GalleryDetail) (PipelineResult, error) {
	var res PipelineResult
	galleryID := detail.Ref.ID

	existing, err := p.store.ListPages(ctx, galleryID)
	if err != nil {
		return res, fmt.Errorf("list existing pages: %w", err)
	}
	persisted := make(map[int]bool, len(existing))
	for _, page := range existing {
		persisted[page.Index] = true
	}

	var pending []pageGroup
	groupIdx := make(map[string]int)
	for _, page := range detail.Pages {
		if persisted[page.Index] {
			res.Skipped++
			continue
		}
		if page.Hash == "" {
			p.log.WarnObj("page has no content hash; dropping", "page_error", pageFields(page, nil))
			res.Failed++
			continue
		}

		img, found, err := p.dedup.FindByContentHash(ctx, page.Hash)
		if err != nil {
			return res, fmt.Errorf("lookup image %s: %w", page.Hash, err)
		}
		if found {
			if err := p.linkPage(ctx, page, img); err != nil {
				return res, err
			}
			res.Reused++
			p.metrics.PagesReused.Inc()
			continue
		}

		if i, ok := groupIdx[page.Hash]; ok {
			pending[i].pages = append(pending[i].pages, page)
			continue
		}
		groupIdx[page.Hash] = len(pending)
		pending = append(pending, pageGroup{hash: page.Hash, pages: []domain.SourcePage{page}})
	}

	if len(pending) == 0 {
		return res, nil
	}

	err = p.transfer(ctx, pending, &res)
	p.log.InfoObj("gallery pipeline finished", "pipeline_result", map[string]any{
		"gallery_id": galleryID,
		"pages":      len(detail.Pages),
		"skipped":    res.Skipped,
		"reused":     res.Reused,
		"stored":     res.Stored,
		"failed":     res.Failed,
		"downloads":  res.Downloads,
		"uploads":    res.Uploads,
	})
	return res, err
}

// transfer runs the download stage and the upload stage concurrently, joined by
// a bounded queue. It returns once every download was attempted and every
// downloaded payload was drained.
func (p *Pipeline) transfer(ctx context.Context, pending []pageGroup, res *PipelineResult) error {
	queue := make(chan payload, p.opts.QueueSize)
	var downloads, uploads, stored, failed atomic.Int64

	var stages errgroup.Group

	stages.Go(func() error {
		defer close(queue)

		var workers errgroup.Group
		workers.SetLimit(p.opts.DownloadWorkers)
		for _, group := range pending {
			workers.Go(func() error {
				data, err := p.download(ctx, group)
				if err != nil {
					failed.Add(int64(len(group.pages)))
					return nil
				}
				downloads.Add(1)
				queue <- payload{group: group, data: data}
				return nil
			})
		}
		return workers.Wait()
	})

	for i := 0; i < p.opts.UploadWorkers; i++ {
		stages.Go(func() error {
			var firstErr error
			for item := range queue {
				if firstErr != nil {
					// keep draining so the download stage never blocks
					failed.Add(int64(len(item.group.pages)))
					continue
				}
				n, err := p.upload(ctx, item)
				if err != nil {
					failed.Add(int64(len(item.group.pages) - n))
					if isStoreFailure(err) {
						firstErr = err
					}
					continue
				}
				uploads.Add(1)
				stored.Add(int64(n))
			}
			return firstErr
		})
	}

	err := stages.Wait()
	res.Downloads += int(downloads.Load())
	res.Uploads += int(uploads.Load())
	res.Stored += int(stored.Load())
	res.Failed += int(failed.Load())
	return err
}

func (p *Pipeline) download(ctx context.Context, group pageGroup) ([]byte, error) {
	page := group.pages[0]

	p.metrics.DownloadsInFlight.Inc()
	data, err := p.downloader.PageBytes(ctx, page)
	p.metrics.DownloadsInFlight.Dec()

	if err != nil {
		p.metrics.DownloadFailures.Inc()
		p.log.WarnObj("page download failed", "page_error", pageFields(page, err))
		return nil, err
	}
	p.metrics.PagesDownloaded.Inc()
	p.log.DebugObj("page downloaded", "page_download", map[string]any{
		"gallery_id": page.GalleryID,
		"index":      page.Index,
		"bytes":      len(data),
	})
	return data, nil
}

// upload hosts the payload, then writes the Image row and one Page row per page
// sharing the hash. It returns how many Page rows were written.
func (p *Pipeline) upload(ctx context.Context, item payload) (int, error) {
	page := item.group.pages[0]

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.metrics.UploadFailures.Inc()
			p.log.WarnObj("page upload throttled out", "page_error", pageFields(page, err))
			return 0, err
		}
	}

	remoteURL, err := p.uploader.UploadImage(ctx, item.data)
	if err != nil {
		p.metrics.UploadFailures.Inc()
		p.log.WarnObj("page upload failed", "page_error", pageFields(page, err))
		return 0, err
	}
	p.metrics.PagesUploaded.Inc()

	img, err := p.store.CreateImage(ctx, item.group.hash, remoteURL)
	if errors.Is(err, domain.ErrDuplicate) {
		img, err = p.existingImage(ctx, item.group.hash)
	}
	if err != nil {
		return 0, fmt.Errorf("create image %s: %w", item.group.hash, storeFailure(err))
	}
	p.dedup.Remember(img)

	linked := 0
	for _, pg := range item.group.pages {
		if err := p.linkPage(ctx, pg, img); err != nil {
			return linked, storeFailure(err)
		}
		linked++
	}
	return linked, nil
}

func (p *Pipeline) existingImage(ctx context.Context, hash string) (domain.Image, error) {
	img, found, err := p.store.FindImageByHash(ctx, hash)
	if err != nil {
		return domain.Image{}, err
	}
	if !found {
		return domain.Image{}, fmt.Errorf("image %s reported duplicate but is missing: %w", hash, domain.ErrNotFound)
	}
	return img, nil
}

func (p *Pipeline) linkPage(ctx context.Context, page domain.SourcePage, img domain.Image) error {
	err := p.store.CreatePage(ctx, domain.Page{
		GalleryID: page.GalleryID,
		Index:     page.Index,
		ImageID:   img.ID,
	})
	if err != nil {
		return fmt.Errorf("create page %d/%d: %w", page.GalleryID, page.Index, err)
	}
	return nil
}

// storeError tags errors raised by the store inside the upload stage.
type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

func storeFailure(err error) error { return storeError{err: err} }

func isStoreFailure(err error) bool {
	var se storeError
	return errors.As(err, &se)
}

func pageFields(page domain.SourcePage, err error) map[string]any {
	fields := map[string]any{
		"gallery_id": page.GalleryID,
		"index":      page.Index,
		"hash":       page.Hash,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}
