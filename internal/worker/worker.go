// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/staranto/swcache/internal/store"
)

// DefaultAPIPrefix is the path namespace that is never cached.
const DefaultAPIPrefix = "/api/"

// DefaultConcurrency bounds parallel precache fetches and cache deletes.
const DefaultConcurrency = 4

// DefaultPrecache is the manifest used when none is configured.
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/favicon.ico",
	"/logo.png",
	"/css/main.css",
	"/js/main.js",
}

// Fetcher performs network requests on behalf of the worker.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// Worker is one version of the cache worker. The cache generation it owns
// is named by its version tag. Apart from its lifecycle state a Worker holds
// nothing between calls; everything durable is in the storage.
type Worker struct {
	version     string
	origin      *url.URL
	precache    []string
	apiPrefix   string
	concurrency int
	storage     store.Storage
	network     Fetcher
	now         func() time.Time

	mu    sync.Mutex
	state State
}

// Option customizes a Worker.
type Option func(*Worker)

// WithPrecache replaces the precache manifest. URLs are resolved against
// the worker origin.
func WithPrecache(urls ...string) Option {
	return func(w *Worker) { w.precache = append([]string(nil), urls...) }
}

// WithAPIPrefix sets the bypassed path prefix. An empty prefix disables the
// API bypass.
func WithAPIPrefix(prefix string) Option {
	return func(w *Worker) { w.apiPrefix = prefix }
}

// WithConcurrency bounds parallel precache fetches and stale cache deletes.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New returns a worker in the parsed state. origin is the scheme and host
// the worker considers its own, e.g. "http://localhost:8080".
func New(version, origin string, storage store.Storage, network Fetcher, opts ...Option) (*Worker, error) {
	if version == "" {
		return nil, errors.New("worker version tag must not be empty")
	}
	if storage == nil || network == nil {
		return nil, errors.New("worker needs a storage and a network fetcher")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}

	w := &Worker{
		version:     version,
		origin:      &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)},
		precache:    append([]string(nil), DefaultPrecache...),
		apiPrefix:   DefaultAPIPrefix,
		concurrency: DefaultConcurrency,
		storage:     storage,
		network:     network,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Version is the worker's version tag, which is also its cache name.
func (w *Worker) Version() string { return w.version }

// Origin is the worker's own origin.
func (w *Worker) Origin() string { return w.origin.String() }

// Precache returns a copy of the manifest.
func (w *Worker) Precache() []string { return append([]string(nil), w.precache...) }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// MarkRedundant retires the worker after a newer one has taken over.
func (w *Worker) MarkRedundant() { w.setState(StateRedundant) }

// String implements fmt.Stringer.
func (w *Worker) String() string {
	return fmt.Sprintf("worker(%s, %s)", w.version, w.State())
}

// RequestURL returns the absolute URL of req. Server-side requests carry
// only a path, so the scheme comes from X-Forwarded-Proto or the TLS state
// and the host from the Host header.
func RequestURL(req *http.Request) *url.URL {
	u := *req.URL
	u.Fragment = ""
	if u.IsAbs() && u.Host != "" {
		return &u
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if p := req.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	u.Scheme = scheme
	u.Host = req.Host
	return &u
}

// Key is the cache key for req. Requests to the worker's own origin are
// keyed under that origin as configured, so host case and an explicit
// default port never split one URL into two entries.
func (w *Worker) Key(req *http.Request) string {
	u := RequestURL(req)
	if sameOrigin(u, w.origin) {
		u.Scheme = w.origin.Scheme
		u.Host = w.origin.Host
	}
	u.User = nil
	return store.RequestKey(req.Method, u.String())
}

// Intercepts reports whether req is subject to the caching policy. Non-GET
// requests, foreign origins and the API namespace go straight to network.
func (w *Worker) Intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	u := RequestURL(req)
	if !sameOrigin(u, w.origin) {
		return false
	}
	if w.apiPrefix != "" && strings.HasPrefix(u.Path, w.apiPrefix) {
		return false
	}
	return true
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(hostPort(a), hostPort(b))
}

// hostPort makes the default port explicit so that "example.com" and
// "example.com:80" compare equal over http.
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return net.JoinHostPort(u.Hostname(), u.Port())
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return net.JoinHostPort(u.Hostname(), "80")
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return u.Host
}
