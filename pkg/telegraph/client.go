// Package telegraph uploads images to Telegraph and publishes articles built from them.
package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/gallery-relay/internal/domain"
	"github.com/samvad-hq/gallery-relay/pkg/httpclient"
)

const (
	DefaultAPIURL    = "https://api.telegra.ph"
	DefaultUploadURL = "https://telegra.ph/upload"
	defaultTimeout   = 30 * time.Second
	serviceName      = "telegraph"
)

// Options configures the Telegraph client.
type Options struct {
	APIURL      string
	UploadURL   string
	AccessToken string
	ShortName   string
	AuthorName  string
	AuthorURL   string
	Timeout     time.Duration
}

// Client wraps the Telegraph API.
type Client struct {
	http        *resty.Client
	apiURL      string
	uploadURL   string
	accessToken string
	authorName  string
	authorURL   string
}

type apiResponse[T any] struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result T      `json:"result"`
}

type account struct {
	AccessToken string `json:"access_token"`
}

type page struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

type uploadedFile struct {
	Src string `json:"src"`
}

// New builds a client. When no access token is configured a new account is created.
func New(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		http:        httpclient.NewRestyHTTPClient(timeout),
		apiURL:      strings.TrimRight(firstNonEmpty(opts.APIURL, DefaultAPIURL), "/"),
		uploadURL:   firstNonEmpty(opts.UploadURL, DefaultUploadURL),
		accessToken: strings.TrimSpace(opts.AccessToken),
		authorName:  opts.AuthorName,
		authorURL:   opts.AuthorURL,
	}
	if c.accessToken != "" {
		return c, nil
	}

	shortName := firstNonEmpty(opts.ShortName, opts.AuthorName, "gallery-relay")
	var acc account
	err := c.call(ctx, "createAccount", map[string]string{
		"short_name":  shortName,
		"author_name": opts.AuthorName,
		"author_url":  opts.AuthorURL,
	}, &acc)
	if err != nil {
		return nil, fmt.Errorf("create telegraph account: %w", err)
	}
	if acc.AccessToken == "" {
		return nil, errors.New("create telegraph account: empty access token")
	}
	c.accessToken = acc.AccessToken
	return c, nil
}

// AccessToken returns the token in use, including one minted by New.
func (c *Client) AccessToken() string { return c.accessToken }

// UploadImage uploads raw image bytes and returns their absolute URL.
func (c *Client) UploadImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload image: empty payload")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", "blob", http.DetectContentType(data), bytes.NewReader(data)).
		Post(c.uploadURL)
	if err := checkResponse("upload image", resp, err); err != nil {
		return "", err
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) > 0 && body[0] != '[' {
		var failed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &failed); err != nil {
			return "", fmt.Errorf("decode upload response: %w", err)
		}
		return "", domain.Rejected(serviceName, failed.Error)
	}

	var files []uploadedFile
	if err := json.Unmarshal(body, &files); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if len(files) == 0 || files[0].Src == "" {
		return "", domain.Rejected(serviceName, "upload returned no file")
	}
	return c.absolute(files[0].Src), nil
}

// CreateArticle publishes an article whose body is the given HTML fragment.
func (c *Client) CreateArticle(ctx context.Context, title, htmlBody string) (string, error) {
	nodes, err := HTMLToNodes(htmlBody)
	if err != nil {
		return "", err
	}
	content, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("encode article content: %w", err)
	}

	var p page
	err = c.call(ctx, "createPage", map[string]string{
		"access_token":   c.accessToken,
		"title":          truncateRunes(title, 256),
		"author_name":    c.authorName,
		"author_url":     c.authorURL,
		"content":        string(content),
		"return_content": "false",
	}, &p)
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}
	if p.URL == "" {
		return "", domain.Rejected(serviceName, "createPage returned no url")
	}
	return p.URL, nil
}

func (c *Client) call(ctx context.Context, method string, form map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.apiURL + "/" + method)
	if err := checkResponse(method, resp, err); err != nil {
		return err
	}

	var decoded apiResponse[json.RawMessage]
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !decoded.OK {
		return domain.Rejected(serviceName, decoded.Error)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// absolute resolves a "/file/..." path against the upload host.
func (c *Client) absolute(src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	base := c.uploadURL
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.Index(base[i+3:], "/"); j >= 0 {
			base = base[:i+3+j]
		}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(src, "/")
}

func checkResponse(what string, resp *resty.Response, err error) error {
	if err != nil {
		return httpclient.CheckStatus(what, 0, nil, err)
	}
	// Telegraph reports application errors with 200 and ok=false; 4xx bodies are still JSON.
	if status := resp.StatusCode(); httpclient.Retryable(status) {
		return httpclient.CheckStatus(what, status, resp.Body(), nil)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
