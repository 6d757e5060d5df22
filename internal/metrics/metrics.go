package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gallery_relay"

// Metrics groups the relay's prometheus collectors.
type Metrics struct {
	PagesReused       prometheus.Counter
	PagesDownloaded   prometheus.Counter
	DownloadFailures  prometheus.Counter
	PagesUploaded     prometheus.Counter
	UploadFailures    prometheus.Counter
	DownloadsInFlight prometheus.Gauge
	Galleries         *prometheus.CounterVec
	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "pages_reused_total",
			Help: "Pages linked to an already hosted image without any transfer.",
		}),
		PagesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "pages_downloaded_total",
			Help: "Page payloads downloaded from the source.",
		}),
		DownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "download_failures_total",
			Help: "Page downloads that failed and were dropped for the run.",
		}),
		PagesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "pages_uploaded_total",
			Help: "Page payloads uploaded to the hosting service.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "upload_failures_total",
			Help: "Page uploads that failed and were dropped for the run.",
		}),
		DownloadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "downloads_in_flight",
			Help: "Page downloads currently in progress.",
		}),
		Galleries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "galleries_total",
			Help: "Galleries processed, labelled by classification decision.",
		}, []string{"decision"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cycles_total",
			Help: "Polling cycles, labelled by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "cycle_duration_seconds",
			Help:    "Wall time of a polling cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.PagesReused,
		m.PagesDownloaded,
		m.DownloadFailures,
		m.PagesUploaded,
		m.UploadFailures,
		m.DownloadsInFlight,
		m.Galleries,
		m.Cycles,
		m.CycleDuration,
	)
	return m
}

// NewUnregistered returns collectors bound to a private registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveCycle records the outcome and duration of one polling cycle.
func (m *Metrics) ObserveCycle(started time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(time.Since(started).Seconds())
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
