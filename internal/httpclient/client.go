// Package httpclient is the bot's outbound HTTP boundary: JSON requests
// against a base URL with optional bearer or basic auth, and transport or
// status failures mapped to typed errors.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "sphexbot"
	maxBodyBytes     = 4 << 20
)

type Config struct {
	BaseURL   string
	Token     string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	token     string
	username  string
	password  string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// Response is a raw response with its body already read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) ContentType() string {
	return strings.ToLower(r.Header.Get("Content-Type"))
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:     strings.TrimSpace(cfg.Token),
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: userAgent,
		logger:    logger,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    4,
				IdleConnTimeout: 20 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("stopped after 5 redirects")
				}
				return nil
			},
		},
	}
}

// WithBaseURL returns a copy of c talking to another base URL with the
// same credentials and transport.
func (c *Client) WithBaseURL(baseURL string) *Client {
	clone := *c
	clone.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &clone
}

// WithToken returns a copy of c authenticating with a bearer token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do sends body (when non-nil) as JSON and decodes a 2xx response into out
// (when non-nil). Non-2xx responses return *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	resp, err := c.send(ctx, method, path, payload, body != nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(method, c.resolve(path), resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response from %s %s: %w", method, c.resolve(path), err)
	}
	return nil
}

// Get fetches target without decoding it. Non-2xx responses return
// *StatusError.
func (c *Client) Get(ctx context.Context, target string) (*Response, error) {
	resp, err := c.send(ctx, http.MethodGet, target, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(http.MethodGet, c.resolve(target), resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload io.Reader, jsonBody bool) (*Response, error) {
	target := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("http request completed",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) resolve(path string) string {
	if strings.Contains(path, "://") || c.baseURL == "" {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
