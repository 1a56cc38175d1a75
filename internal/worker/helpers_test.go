// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staranto/swcache/internal/store"
)

const testOrigin = "http://localhost:8080"

var errOffline = errors.New("dial tcp: connection refused")

// fakeNetwork answers by request path. Unknown paths fail like an offline
// network.
type fakeNetwork struct {
	mu     sync.Mutex
	routes map[string]func() (*http.Response, error)
	calls  []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: map[string]func() (*http.Response, error){}}
}

func (n *fakeNetwork) serve(path string, status int, contentType, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[path] = func() (*http.Response, error) {
		return httpResponse(status, contentType, body), nil
	}
}

func (n *fakeNetwork) fail(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.routes, path)
}

func (n *fakeNetwork) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls = append(n.calls, req.Method+" "+req.URL.Path)
	route, ok := n.routes[req.URL.Path]
	n.mu.Unlock()
	if !ok {
		return nil, errOffline
	}
	return route()
}

func httpResponse(status int, contentType, body string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// spyStorage counts every storage and cache call, and Opens separately.
type spyStorage struct {
	store.Storage
	ops   atomic.Int32
	opens atomic.Int32
}

func (s *spyStorage) Open(ctx context.Context, name string) (store.Cache, error) {
	s.ops.Add(1)
	s.opens.Add(1)
	c, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &spyCache{Cache: c, parent: s}, nil
}

func (s *spyStorage) Lookup(ctx context.Context, name string) (store.Cache, bool, error) {
	s.ops.Add(1)
	c, ok, err := s.Storage.Lookup(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &spyCache{Cache: c, parent: s}, true, nil
}

func (s *spyStorage) Keys(ctx context.Context) ([]string, error) {
	s.ops.Add(1)
	return s.Storage.Keys(ctx)
}

func (s *spyStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.ops.Add(1)
	return s.Storage.Delete(ctx, name)
}

type spyCache struct {
	store.Cache
	parent *spyStorage
}

func (c *spyCache) Put(ctx context.Context, e *store.Entry) error {
	c.parent.ops.Add(1)
	return c.Cache.Put(ctx, e)
}

func (c *spyCache) Match(ctx context.Context, key string) (*store.Entry, bool, error) {
	c.parent.ops.Add(1)
	return c.Cache.Match(ctx, key)
}

// brokenStorage fails the operations that have an error set.
type brokenStorage struct {
	store.Storage
	openErr   error
	keysErr   error
	deleteErr error
	putErr    error
	matchErr  error
}

func (b *brokenStorage) Open(ctx context.Context, name string) (store.Cache, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	c, err := b.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &brokenCache{Cache: c, parent: b}, nil
}

func (b *brokenStorage) Lookup(ctx context.Context, name string) (store.Cache, bool, error) {
	if b.openErr != nil {
		return nil, false, b.openErr
	}
	c, ok, err := b.Storage.Lookup(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &brokenCache{Cache: c, parent: b}, true, nil
}

func (b *brokenStorage) Keys(ctx context.Context) ([]string, error) {
	if b.keysErr != nil {
		return nil, b.keysErr
	}
	return b.Storage.Keys(ctx)
}

func (b *brokenStorage) Delete(ctx context.Context, name string) (bool, error) {
	if b.deleteErr != nil {
		return false, b.deleteErr
	}
	return b.Storage.Delete(ctx, name)
}

type brokenCache struct {
	store.Cache
	parent *brokenStorage
}

func (c *brokenCache) Put(ctx context.Context, e *store.Entry) error {
	if c.parent.putErr != nil {
		return c.parent.putErr
	}
	return c.Cache.Put(ctx, e)
}

func (c *brokenCache) Match(ctx context.Context, key string) (*store.Entry, bool, error) {
	if c.parent.matchErr != nil {
		return nil, false, c.parent.matchErr
	}
	return c.Cache.Match(ctx, key)
}

func newTestWorker(t *testing.T, version string, s store.Storage, n Fetcher, opts ...Option) *Worker {
	t.Helper()
	w, err := New(version, testOrigin, s, n, opts...)
	require.NoError(t, err)
	return w
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func cached(t *testing.T, s store.Storage, cacheName, key string) (*store.Entry, bool) {
	t.Helper()
	c, err := s.Open(context.Background(), cacheName)
	require.NoError(t, err)
	e, ok, err := c.Match(context.Background(), key)
	require.NoError(t, err)
	return e, ok
}
