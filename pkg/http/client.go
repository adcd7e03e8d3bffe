package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrBodyTooLarge is returned by Fetch when a response exceeds the configured limit.
var ErrBodyTooLarge = errors.New("http: response body too large")

type ClientOption func(*Client)

// RequestOptions describes one upstream fetch.
type RequestOptions struct {
	Method string // GET when empty
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully buffered upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client fetches from the upstream origin on behalf of the gateway. It hands
// redirects back to the caller instead of following them, so pages see the
// same redirect the origin sent.
type Client struct {
	timeout         time.Duration
	maxBodyBytes    int64
	followRedirects bool
	transport       http.RoundTripper
	client          *http.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:      30 * time.Second,
		maxBodyBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = &http.Client{Timeout: c.timeout, Transport: c.transport}
	if !c.followRedirects {
		c.client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// Fetch sends the request and buffers the whole response. Any status is a
// successful fetch; only transport failures and oversized bodies are errors.
func (c *Client) Fetch(ctx context.Context, opts *RequestOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range opts.Header {
		req.Header[k] = append([]string(nil), vs...)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodyBytes+1)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.maxBodyBytes > 0 && int64(len(buf)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: buf}, nil
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// WithMaxBodyBytes caps buffered response bodies. Zero disables the cap.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) { c.maxBodyBytes = n }
}

// WithFollowRedirects makes the client follow redirects itself.
func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) { c.followRedirects = follow }
}

func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.transport = rt }
}
