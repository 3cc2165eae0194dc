package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const MethodGet = http.MethodGet

// RequestOptions describes one call. Body, when set, is sent as JSON.
type RequestOptions struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	Body    interface{}
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the server asked us to come back later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type ClientOption func(*Client)

// Client is a small JSON client for public market data APIs. Answers of
// 429 and 5xx are retried with doubling backoff.
type Client struct {
	hc        *http.Client
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	userAgent string
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   30 * time.Second,
		retries:   2,
		backoff:   500 * time.Millisecond,
		userAgent: "latenttrader",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	c.hc.Timeout = c.timeout
	return c
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// WithRetries sets how many extra attempts a retryable failure gets and
// the wait before the first one.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the underlying client, e.g. for a custom transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// SendAndParse performs the request and decodes a JSON answer into dest.
// dest may be nil to discard the body or *[]byte to keep it raw.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	var payload []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		payload = b
	}

	wait := c.backoff
	for attempt := 0; ; attempt++ {
		body, err := c.do(ctx, opts, payload)
		if err == nil {
			return decode(body, dest)
		}
		se, ok := err.(*StatusError)
		if !ok || !se.Retryable() || attempt >= c.retries {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
}

func (c *Client) do(ctx context.Context, opts *RequestOptions, payload []byte) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = MethodGet
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.URL, rd)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if len(opts.Query) > 0 {
		req.URL.RawQuery = opts.Query.Encode()
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decode(body []byte, dest interface{}) error {
	switch v := dest.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = body
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
