package publishers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/gallery-relay/internal/logger"
	"github.com/samvad-hq/gallery-relay/pkg/httpclient"
)

const (
	webhookDefaultTimeout = 5 * time.Second
	webhookEventHeader    = "X-Relay-Event"
)

// WebhookConfig posts events as JSON to an HTTP endpoint.
type WebhookConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func checkWebhook(s *SinkConfig) error {
	if s.HTTP == nil {
		return errors.New("http block is required")
	}
	c := *s.HTTP
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return errors.New("http.url is required")
	}
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	c.Headers = headers
	s.HTTP = &c
	return nil
}

type webhookPublisher struct {
	id     string
	method string
	url    string
	client *resty.Client
	log    logger.Logger
}

func openWebhook(_ context.Context, sink SinkConfig, log logger.Logger) (Publisher, error) {
	timeout := time.Duration(sink.HTTP.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = webhookDefaultTimeout
	}
	opts := make([]httpclient.Option, 0, len(sink.HTTP.Headers))
	for k, v := range sink.HTTP.Headers {
		opts = append(opts, httpclient.WithHeader(k, v))
	}
	return &webhookPublisher{
		id:     sink.ID,
		method: sink.HTTP.Method,
		url:    sink.HTTP.URL,
		client: httpclient.NewRestyHTTPClient(timeout, opts...),
		log:    logger.Ensure(log),
	}, nil
}

func (w *webhookPublisher) ID() string   { return w.id }
func (w *webhookPublisher) Type() string { return TypeHTTP }

// Publish sends the event body; 429 and 5xx answers are transient.
func (w *webhookPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(webhookEventHeader, evt.Kind).
		SetBody(evt).
		Execute(w.method, w.url)

	var (
		status int
		body   []byte
	)
	if err == nil {
		status, body = resp.StatusCode(), resp.Body()
	}
	if err := httpclient.CheckStatus(fmt.Sprintf("webhook %s", w.id), status, body, err); err != nil {
		return err
	}
	w.log.DebugObj("webhook delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": w.id,
		"gallery_id":   evt.GalleryID,
		"status":       status,
	})
	return nil
}
