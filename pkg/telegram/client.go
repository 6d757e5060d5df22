// Package telegram posts and edits channel messages through the Bot API.
package telegram

import (
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
	DefaultAPIURL  = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
	serviceName    = "telegram"
	parseModeHTML  = "HTML"
	notModified    = "message is not modified"
)

// Options configures the bot client.
type Options struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Client is a minimal Bot API client.
type Client struct {
	http    *resty.Client
	baseURL string
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// New builds a bot client for the given token.
func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	api := strings.TrimRight(strings.TrimSpace(opts.APIURL), "/")
	if api == "" {
		api = DefaultAPIURL
	}
	return &Client{
		http:    httpclient.NewRestyHTTPClient(timeout),
		baseURL: api + "/bot" + token,
	}, nil
}

// SendMessage posts an HTML message and returns its id.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (int64, error) {
	result, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": parseModeHTML,
	})
	if err != nil {
		return 0, err
	}
	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, fmt.Errorf("decode sendMessage result: %w", err)
	}
	if msg.MessageID == 0 {
		return 0, domain.Rejected(serviceName, "sendMessage returned no message id")
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text of an existing message. Editing to identical
// text is treated as success.
func (c *Client) EditMessage(ctx context.Context, chatID string, messageID int64, text string) error {
	_, err := c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": parseModeHTML,
	})
	if err != nil && errors.Is(err, domain.ErrServiceRejection) && strings.Contains(err.Error(), notModified) {
		return nil
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.baseURL + "/" + method)
	if err != nil {
		return nil, httpclient.CheckStatus(method, 0, nil, err)
	}

	var decoded apiResponse
	if jsonErr := json.Unmarshal(resp.Body(), &decoded); jsonErr != nil {
		if err := httpclient.CheckStatus(method, resp.StatusCode(), resp.Body(), nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("decode %s response: %w", method, jsonErr)
	}
	if decoded.OK {
		return decoded.Result, nil
	}

	if decoded.ErrorCode == http.StatusTooManyRequests || decoded.ErrorCode >= http.StatusInternalServerError ||
		httpclient.Retryable(resp.StatusCode()) {
		retry := 0
		if decoded.Parameters != nil {
			retry = decoded.Parameters.RetryAfter
		}
		return nil, domain.Transient(fmt.Errorf("%s: %d %s (retry after %ds)", method, decoded.ErrorCode, decoded.Description, retry))
	}
	return nil, domain.Rejected(serviceName, fmt.Sprintf("%s: %s", method, decoded.Description))
}
