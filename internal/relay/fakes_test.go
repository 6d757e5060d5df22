package relay

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	"github.com/samvad-hq/gallery-relay/internal/storage"
	"github.com/samvad-hq/gallery-relay/pkg/publishers"
)

var errDownload = errors.New("download failed")

// fakeSource serves galleries from memory and records every call.
type fakeSource struct {
	mu        sync.Mutex
	refs      []domain.GalleryRef
	details   map[int64]domain.GalleryDetail
	failPages map[string]bool // "gid/index"
	searchErr error
	delay     time.Duration

	galleryCalls atomic.Int32
	downloads    atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{details: map[int64]domain.GalleryDetail{}, failPages: map[string]bool{}}
}

// add registers a gallery whose pages carry the given hashes in order.
func (f *fakeSource) add(id int64, title string, tags []domain.Tag, hashes ...string) domain.GalleryDetail {
	ref := domain.GalleryRef{ID: id, Token: fmt.Sprintf("t%d", id)}
	detail := domain.GalleryDetail{
		Ref:   ref,
		URL:   fmt.Sprintf("https://source/g/%d/t%d/", id, id),
		Title: title,
		Tags:  tags,
	}
	for i, h := range hashes {
		detail.Pages = append(detail.Pages, domain.SourcePage{
			GalleryID: id,
			Index:     i + 1,
			Hash:      h,
			URL:       fmt.Sprintf("https://source/s/%s/%d-%d", h, id, i+1),
		})
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.details[id]; !exists {
		f.refs = append(f.refs, ref)
	}
	f.details[id] = detail
	return detail
}

func (f *fakeSource) setTags(id int64, tags []domain.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.details[id]
	d.Tags = tags
	f.details[id] = d
}

func (f *fakeSource) Search(context.Context, string, int) iter.Seq2[domain.GalleryRef, error] {
	return func(yield func(domain.GalleryRef, error) bool) {
		if f.searchErr != nil {
			yield(domain.GalleryRef{}, f.searchErr)
			return
		}
		f.mu.Lock()
		refs := append([]domain.GalleryRef(nil), f.refs...)
		f.mu.Unlock()
		for _, r := range refs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (f *fakeSource) Gallery(_ context.Context, ref domain.GalleryRef) (domain.GalleryDetail, error) {
	f.galleryCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[ref.ID]
	if !ok {
		return domain.GalleryDetail{}, fmt.Errorf("gallery %d: %w", ref.ID, domain.ErrNotFound)
	}
	return d, nil
}

func (f *fakeSource) PageBytes(_ context.Context, page domain.SourcePage) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	f.downloads.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	fail := f.failPages[fmt.Sprintf("%d/%d", page.GalleryID, page.Index)]
	f.mu.Unlock()
	if fail {
		return nil, errDownload
	}
	return []byte("bytes-of-" + page.Hash), nil
}

type article struct {
	title string
	html  string
}

// fakeHost records uploads and articles.
type fakeHost struct {
	mu       sync.Mutex
	uploads  []string
	articles []article
	failWith error
}

func (h *fakeHost) UploadImage(_ context.Context, data []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return "", h.failWith
	}
	h.uploads = append(h.uploads, string(data))
	return fmt.Sprintf("https://host/file/%d-%s.jpg", len(h.uploads), data), nil
}

func (h *fakeHost) CreateArticle(_ context.Context, title, htmlBody string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.articles = append(h.articles, article{title: title, html: htmlBody})
	return fmt.Sprintf("https://host/article-%d", len(h.articles)), nil
}

func (h *fakeHost) uploadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uploads)
}

type sentMessage struct {
	chatID string
	id     int64
	text   string
}

// fakeMessenger records sends and edits.
type fakeMessenger struct {
	mu    sync.Mutex
	next  int64
	sent  []sentMessage
	edits []sentMessage
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.sent = append(m.sent, sentMessage{chatID: chatID, id: m.next + 100, text: text})
	return m.next + 100, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, chatID string, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, sentMessage{chatID: chatID, id: messageID, text: text})
	return nil
}

type fakeFormatter struct{}

func (fakeFormatter) Format(detail domain.GalleryDetail, articleURL string) string {
	return fmt.Sprintf("%s|%d tags|%s", detail.Title, len(detail.Tags), articleURL)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishers.Event
}

func (e *fakeEvents) Publish(_ context.Context, evt publishers.Event) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return 1, nil
}

// countingStore counts writes on top of the in-memory store.
type countingStore struct {
	*storage.MemoryStore
	writes atomic.Int32
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (c *countingStore) CreateGallery(ctx context.Context, g domain.Gallery) error {
	c.writes.Add(1)
	return c.MemoryStore.CreateGallery(ctx, g)
}

func (c *countingStore) UpdateGallery(ctx context.Context, g domain.Gallery) error {
	c.writes.Add(1)
	return c.MemoryStore.UpdateGallery(ctx, g)
}

func (c *countingStore) CreateImage(ctx context.Context, hash, url string) (domain.Image, error) {
	c.writes.Add(1)
	return c.MemoryStore.CreateImage(ctx, hash, url)
}

func (c *countingStore) CreatePage(ctx context.Context, p domain.Page) error {
	c.writes.Add(1)
	return c.MemoryStore.CreatePage(ctx, p)
}

func (c *countingStore) CreateMessage(ctx context.Context, m domain.Message) error {
	c.writes.Add(1)
	return c.MemoryStore.CreateMessage(ctx, m)
}

type harness struct {
	source    *fakeSource
	store     *countingStore
	host      *fakeHost
	messenger *fakeMessenger
	events    *fakeEvents
	service   *Service
}

func newHarness(opts PipelineOptions) (*harness, error) {
	h := &harness{
		source:    newFakeSource(),
		store:     newCountingStore(),
		host:      &fakeHost{},
		messenger: &fakeMessenger{},
		events:    &fakeEvents{},
	}
	pipeline := NewPipeline(h.source, h.host, h.store, NewDeduplicator(h.store, time.Minute), opts, nil, nil)
	svc, err := NewService(Deps{
		Source:    h.source,
		Store:     h.store,
		Pipeline:  pipeline,
		Host:      h.host,
		Messenger: h.messenger,
		Formatter: fakeFormatter{},
		Events:    h.events,
	}, Options{ChannelID: "@channel", SearchPages: 1})
	if err != nil {
		return nil, err
	}
	h.service = svc
	return h, nil
}
