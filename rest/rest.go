// Package rest is a minimal client for the chat REST API used by relay
// handlers to act on events.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bjaus/relay"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "relay (https://github.com/bjaus/relay)"
)

// Config holds the configuration for a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://discord.com/api/v10.
	BaseURL string
	// Token is the bot token sent as "Authorization: Bot <token>".
	Token string
	// Timeout bounds each request. Default: 15s.
	Timeout time.Duration
	// Transport is the base round tripper. Default: http.DefaultTransport.
	Transport http.RoundTripper
}

// Client calls the REST API. It is safe for concurrent use.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

// New creates a Client. Requests are traced with otelhttp.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(cfg.Transport),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  slog.Default(),
	}, nil
}

// SetLogger sets the logger for failed requests.
func (c *Client) SetLogger(l *slog.Logger) {
	c.logger = l
}

// CreateMessage posts content to a channel and returns the created message.
func (c *Client) CreateMessage(ctx context.Context, channelID relay.Snowflake, content string) (*relay.Message, error) {
	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/channels/"+channelID.String()+"/messages", body)
	if err != nil {
		return nil, err
	}

	ev, err := relay.DecodeDispatch(relay.KindMessageCreate, resp)
	if err != nil {
		return nil, fmt.Errorf("decode created message: %w", err)
	}
	msg := ev.(*relay.MessageCreate).Message
	return &msg, nil
}

// AddReaction reacts to a message as the current identity. emoji is a
// unicode emoji or "name:id" for a custom one.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID relay.Snowflake, emoji string) error {
	path := "/channels/" + channelID.String() +
		"/messages/" + messageID.String() +
		"/reactions/" + url.PathEscape(emoji) + "/@me"
	_, err := c.do(ctx, http.MethodPut, path, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	serr := &StatusError{Code: resp.StatusCode}
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		serr.APICode = parsed.Get("code").Int()
		serr.Message = parsed.Get("message").String()
	}
	c.logger.ErrorContext(ctx, "rest request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"error", serr.Error(),
	)
	return nil, serr
}

// StatusError represents an API response with a non-2xx status code.
type StatusError struct {
	Code    int
	APICode int64
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http status %d: %s (code %d)", e.Code, e.Message, e.APICode)
	}
	return fmt.Sprintf("http status %d", e.Code)
}
