// Package ehentai reads gallery listings, gallery details and page images from
// an E-Hentai style gallery site.
package ehentai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/gallery-relay/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://e-hentai.org"
	defaultTimeout = 30 * time.Second
)

// Options configures the source client.
type Options struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the gallery site over HTTP.
type Client struct {
	http    httpclient.Client
	baseURL string
}

// New constructs a Client. A nil http client falls back to a resty-backed one
// carrying the configured user agent and cookie; an injected client is used as-is.
func New(opts Options, client httpclient.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = httpclient.NewRestyClient(timeout,
			httpclient.WithUserAgent(strings.TrimSpace(opts.UserAgent)),
			httpclient.WithHeader("Cookie", strings.TrimSpace(opts.Cookie)),
		)
	}
	return &Client{http: client, baseURL: base}
}

// GalleryURL returns the canonical gallery address for id/token.
func (c *Client) GalleryURL(id int64, token string) string {
	return fmt.Sprintf("%s/g/%d/%s/", c.baseURL, id, token)
}

func (c *Client) fetch(ctx context.Context, url, what string) ([]byte, error) {
	resp, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return nil, httpclient.CheckStatus(what, 0, nil, err)
	}
	body := resp.Body()
	if err := httpclient.CheckStatus(what, resp.StatusCode(), body, nil); err != nil {
		return nil, err
	}
	return body, nil
}
