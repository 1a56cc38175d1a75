// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package network forwards requests to the upstream origin the cache
// worker fronts.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a whole upstream exchange, body included.
const DefaultTimeout = 10 * time.Second

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client sends requests to a fixed upstream origin.
type Client struct {
	upstream *url.URL
	client   *http.Client
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Its Timeout is
// overridden by WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. Zero or less keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// New returns a Client for upstream, e.g. "http://127.0.0.1:5173".
func New(upstream string, opts ...Option) (*Client, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream %q: %w", upstream, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream %q must be an http or https URL", upstream)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream %q has no host", upstream)
	}

	c := &Client{
		upstream: u,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Copy so a shared client passed in is not mutated.
	hc := *c.client
	hc.Timeout = c.timeout
	// Redirects are the browser's business, not ours.
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	c.client = &hc
	return c, nil
}

// Upstream returns the upstream origin.
func (c *Client) Upstream() string { return c.upstream.String() }

// Fetch forwards req to the upstream, keeping its method, path, query,
// end-to-end headers and body. Any HTTP response is a success; only
// transport failures are errors.
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out, err := c.outgoing(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(out)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("request timed out: %s: %w", out.URL, err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func (c *Client) outgoing(ctx context.Context, req *http.Request) (*http.Request, error) {
	target := *c.upstream
	target.Path = singleJoiningSlash(c.upstream.Path, req.URL.Path)
	target.RawPath = ""
	target.RawQuery = req.URL.RawQuery
	target.Fragment = ""

	body := req.Body
	if body == http.NoBody {
		body = nil
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	out.ContentLength = req.ContentLength

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for _, f := range out.Header.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			out.Header.Del(strings.TrimSpace(name))
		}
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	if host != "" {
		out.Header.Set("X-Forwarded-Host", host)
	}
	proto := "http"
	if req.TLS != nil || strings.EqualFold(req.URL.Scheme, "https") {
		proto = "https"
	}
	if out.Header.Get("X-Forwarded-Proto") == "" {
		out.Header.Set("X-Forwarded-Proto", proto)
	}
	return out, nil
}

func singleJoiningSlash(a, b string) string {
	if b == "" {
		b = "/"
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
