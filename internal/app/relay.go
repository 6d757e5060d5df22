package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/samvad-hq/gallery-relay/internal/config"
	"github.com/samvad-hq/gallery-relay/internal/logger"
	"github.com/samvad-hq/gallery-relay/internal/metrics"
	"github.com/samvad-hq/gallery-relay/internal/relay"
	"github.com/samvad-hq/gallery-relay/internal/storage"
	"github.com/samvad-hq/gallery-relay/pkg/ehentai"
	"github.com/samvad-hq/gallery-relay/pkg/publishers"
	"github.com/samvad-hq/gallery-relay/pkg/tags"
	"github.com/samvad-hq/gallery-relay/pkg/telegram"
	"github.com/samvad-hq/gallery-relay/pkg/telegraph"
)

// State reports whether the sync loop is between cycles or inside one.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

type cycleRunner interface {
	RunCycle(ctx context.Context) (relay.CycleStats, error)
}

// Relay is the gallery relay runtime. It owns the store, the service graph and
// the polling loop.
type Relay struct {
	cfg         *config.Config
	service     *relay.Service
	runner      cycleRunner
	fanout      *publishers.Fanout
	store       storage.Store
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	interval    time.Duration
	metricsAddr string
	log         logger.Logger
	state       atomic.Int32
}

// NewRelay builds the relay runtime from config.
func NewRelay(ctx context.Context, cfg *config.Config, log logger.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, err := storage.NewStore(storage.Options{
		Type:       cfg.StorageType,
		BBoltPath:  cfg.BBoltPath,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":        cfg.StorageType,
		"bbolt_path":  cfg.BBoltPath,
		"sqlite_path": cfg.SQLitePath,
	})

	r := &Relay{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		metrics:     m,
		interval:    cfg.SyncInterval,
		metricsAddr: cfg.MetricsAddr,
		log:         log,
	}
	if err := r.wire(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return r, nil
}

func (r *Relay) wire(ctx context.Context) error {
	cfg := r.cfg

	fanout, err := buildFanout(ctx, cfg.PublishersFile, r.log)
	if err != nil {
		return err
	}
	r.fanout = fanout

	source := ehentai.New(ehentai.Options{
		BaseURL:   cfg.SourceBaseURL,
		Cookie:    cfg.SourceCookie,
		UserAgent: cfg.SourceUserAgent,
		Timeout:   cfg.SourceTimeout,
	}, nil)

	host, err := telegraph.New(ctx, telegraph.Options{
		APIURL:      cfg.TelegraphAPIURL,
		UploadURL:   cfg.TelegraphUploadURL,
		AccessToken: cfg.TelegraphAccessToken,
		ShortName:   cfg.TelegraphShortName,
		AuthorName:  cfg.TelegraphAuthorName,
		AuthorURL:   cfg.TelegraphAuthorURL,
		Timeout:     cfg.TelegraphTimeout,
	})
	if err != nil {
		return fmt.Errorf("init telegraph: %w", err)
	}
	if cfg.TelegraphAccessToken == "" {
		r.log.WarnObj("telegraph account created; set telegraph_access_token to keep publishing under it", "telegraph_account", map[string]any{
			"short_name": cfg.TelegraphShortName,
		})
	}

	bot, err := telegram.New(telegram.Options{
		APIURL:  cfg.TelegramAPIURL,
		Token:   cfg.TelegramBotToken,
		Timeout: cfg.TelegramTimeout,
	})
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}

	db, err := tags.Load(cfg.TransFile)
	if err != nil {
		return fmt.Errorf("load tag translations: %w", err)
	}

	dedup := relay.NewDeduplicator(r.store, cfg.DedupCacheTTL)
	pipeline := relay.NewPipeline(source, host, r.store, dedup, relay.PipelineOptions{
		DownloadWorkers: cfg.DownloadWorkers,
		UploadWorkers:   cfg.UploadWorkers,
		QueueSize:       cfg.UploadQueueSize,
		UploadRate:      cfg.UploadRatePerSecond,
	}, r.log, r.metrics)

	deps := relay.Deps{
		Source:    source,
		Store:     r.store,
		Pipeline:  pipeline,
		Host:      host,
		Messenger: bot,
		Formatter: tags.NewFormatter(db),
		Log:       r.log,
		Metrics:   r.metrics,
	}
	if fanout.Size() > 0 {
		deps.Events = fanout
	}

	service, err := relay.NewService(deps, relay.Options{
		ChannelID:    cfg.TelegramChannelID,
		SearchParams: cfg.SearchParams,
		SearchPages:  cfg.SearchPages,
	})
	if err != nil {
		return fmt.Errorf("init relay service: %w", err)
	}
	r.service = service
	r.runner = service
	return nil
}

// buildFanout loads the optional publishers file; an empty path disables events.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	sinks, err := publishers.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers file: %w", err)
	}
	fanout, err := publishers.Open(ctx, sinks, log)
	if err != nil {
		return nil, fmt.Errorf("open publishers: %w", err)
	}
	log.InfoObj("publishers loaded", "publishers_meta", map[string]any{
		"count":      fanout.Size(),
		"publishers": fanout.Sinks(),
	})
	return fanout, nil
}

// Run executes one cycle immediately and then one per interval until ctx is
// cancelled. Cycle failures are logged and never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil || r.runner == nil {
		return fmt.Errorf("relay is not initialized")
	}
	if r.interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}

	if r.metricsAddr != "" && r.registry != nil {
		go func() {
			if err := metrics.Serve(ctx, r.metricsAddr, r.registry); err != nil {
				r.log.ErrorObj("metrics server stopped", "error", err.Error())
			}
		}()
	}

	r.log.InfoObj("relay loop starting", "relay_state", map[string]any{
		"sync_interval":    r.interval.String(),
		"publishers_count": r.fanout.Size(),
	})

	if err := r.RunOnce(ctx); err != nil {
		r.log.ErrorObj("initial cycle failed", "error", err.Error())
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.InfoObj("relay loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.ErrorObj("scheduled cycle failed", "error", err.Error())
			}
		}
	}
}

// RunOnce performs a single polling cycle.
func (r *Relay) RunOnce(ctx context.Context) error {
	if r == nil || r.runner == nil {
		return fmt.Errorf("relay is not initialized")
	}

	r.state.Store(int32(StateRunning))
	defer r.state.Store(int32(StateIdle))

	start := time.Now()
	r.log.InfoObj("cycle started", "cycle_meta", map[string]any{
		"started_at": start.UTC(),
	})

	stats, err := r.runner.RunCycle(ctx)
	if r.metrics != nil {
		r.metrics.ObserveCycle(start, err)
	}

	counts := make(map[string]int, len(stats))
	for decision, n := range stats {
		counts[decision.String()] = n
	}
	if err != nil {
		return fmt.Errorf("cycle aborted after %v: %w", counts, err)
	}
	r.log.InfoObj("cycle completed", "cycle_meta", map[string]any{
		"decisions":  counts,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// MarkDeleted flags a stored gallery so later cycles skip it.
func (r *Relay) MarkDeleted(ctx context.Context, galleryID int64) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("relay is not initialized")
	}
	return r.service.MarkDeleted(ctx, galleryID)
}

// State returns the current loop state.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Close releases publishers and the store.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
