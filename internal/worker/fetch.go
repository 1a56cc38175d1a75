// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/apex/log"

	"github.com/staranto/swcache/internal/store"
)

// Respond answers an intercepted request network-first. A network response
// is returned as-is after a copy is stored; on network failure the cached
// copy is returned, and failing that the offline page. It always returns a
// response.
func (w *Worker) Respond(ctx context.Context, req *http.Request) *Response {
	key := w.Key(req)
	entry := log.WithField("key", key)

	resp, err := w.fetch(ctx, req)
	if err == nil {
		// The caller gets resp; the cache gets its own copy.
		w.save(ctx, key, resp.Clone())
		return resp
	}
	entry.WithError(err).Debug("network fetch failed, falling back to cache")

	if cached, ok := w.match(ctx, key); ok {
		entry.Debug("serving from cache")
		return cached
	}
	entry.Warn("network and cache both missed, serving offline page")
	return Fallback()
}

func (w *Worker) fetch(ctx context.Context, req *http.Request) (*Response, error) {
	raw, err := w.network.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return ReadResponse(raw)
}

func (w *Worker) save(ctx context.Context, key string, resp *Response) {
	// Its generation may already be gone to a newer worker's Activate.
	if w.State() == StateRedundant {
		log.WithField("key", key).Debug("worker is redundant, response not cached")
		return
	}
	cache, err := w.writableCache(ctx)
	if err != nil {
		log.WithError(err).WithField("cache", w.version).Error("failed to cache response")
		return
	}
	if err := w.put(ctx, cache, key, resp); err != nil {
		log.WithError(err).WithField("key", key).Error("failed to cache response")
	}
}

func (w *Worker) put(ctx context.Context, cache store.Cache, key string, resp *Response) error {
	if err := cacheable(resp); err != nil {
		return err
	}
	return cache.Put(ctx, resp.toEntry(key, w.now()))
}

// writableCache returns the worker's generation, creating it only when it
// does not exist.
func (w *Worker) writableCache(ctx context.Context) (store.Cache, error) {
	cache, ok, err := w.storage.Lookup(ctx, w.version)
	if err != nil {
		return nil, err
	}
	if ok {
		return cache, nil
	}
	return w.storage.Open(ctx, w.version)
}

func (w *Worker) match(ctx context.Context, key string) (*Response, bool) {
	cache, ok, err := w.storage.Lookup(ctx, w.version)
	if err != nil {
		log.WithError(err).WithField("cache", w.version).Error("failed to open cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, ok, err := cache.Match(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Error("failed to read cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return fromEntry(e), true
}

// cacheable rejects what a browser cache refuses to store: partial content
// and responses that vary on everything.
func cacheable(resp *Response) error {
	if resp.Status == http.StatusPartialContent {
		return fmt.Errorf("%w: partial content", store.ErrNotCacheable)
	}
	for _, v := range resp.Header.Values("Vary") {
		for _, f := range strings.Split(v, ",") {
			if strings.TrimSpace(f) == "*" {
				return fmt.Errorf("%w: Vary: *", store.ErrNotCacheable)
			}
		}
	}
	return nil
}
