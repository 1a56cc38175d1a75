// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package registration owns the active cache worker. It installs and
// activates a new worker whenever the configured version tag changes, polls
// for such changes, and routes requests through whichever worker is active.
package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/staranto/swcache/internal/store"
	"github.com/staranto/swcache/internal/worker"
)

// DefaultUpdateInterval is how often Poll checks for a new worker version.
const DefaultUpdateInterval = time.Hour

// Script describes one worker version.
type Script struct {
	Version   string
	Origin    string
	Precache  []string
	APIPrefix string
}

// ScriptSource yields the current Script. It is called on every Update so
// that a redeploy with a bumped version tag is picked up.
type ScriptSource func(ctx context.Context) (Script, error)

// StaticScript always returns s.
func StaticScript(s Script) ScriptSource {
	return func(context.Context) (Script, error) { return s, nil }
}

// Registration holds the active worker.
type Registration struct {
	source  ScriptSource
	storage store.Storage
	network worker.Fetcher
	opts    []worker.Option

	// updates are serialized so install always completes before activate
	// and two updates never race to claim.
	mu     sync.Mutex
	active atomic.Pointer[worker.Worker]
}

// New returns a Registration with no active worker. opts are applied to
// every worker it creates, after the script's own settings.
func New(source ScriptSource, storage store.Storage, network worker.Fetcher, opts ...worker.Option) (*Registration, error) {
	if source == nil {
		return nil, errors.New("registration needs a script source")
	}
	if storage == nil || network == nil {
		return nil, errors.New("registration needs a storage and a network fetcher")
	}
	return &Registration{source: source, storage: storage, network: network, opts: opts}, nil
}

// Active returns the active worker, or nil before the first Register.
func (r *Registration) Active() *worker.Worker {
	return r.active.Load()
}

// Register installs and activates the current script.
func (r *Registration) Register(ctx context.Context) error {
	_, err := r.Update(ctx)
	return err
}

// Update loads the script and, if its version differs from the active
// worker's, installs it, activates it and makes it active. It reports
// whether a new worker took over. Install and activate problems are logged
// by the worker and never fail the update; only a script that cannot be
// loaded or used does.
func (r *Registration) Update(ctx context.Context) (bool, error) {
	script, err := r.source(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load worker script: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.active.Load()
	if current != nil && current.Version() == script.Version {
		log.WithField("version", script.Version).Debug("worker is up to date")
		return false, nil
	}

	var opts []worker.Option
	if script.APIPrefix != "" {
		opts = append(opts, worker.WithAPIPrefix(script.APIPrefix))
	}
	if script.Precache != nil {
		opts = append(opts, worker.WithPrecache(script.Precache...))
	}
	opts = append(opts, r.opts...)

	next, err := worker.New(script.Version, script.Origin, r.storage, r.network, opts...)
	if err != nil {
		return false, fmt.Errorf("failed to create worker: %w", err)
	}

	next.Install(ctx)
	next.Activate(ctx)
	r.claim(next)
	return true, nil
}

// claim makes w the worker for all subsequent requests.
func (r *Registration) claim(w *worker.Worker) {
	prev := r.active.Swap(w)
	if prev != nil {
		prev.MarkRedundant()
	}
	log.WithField("version", w.Version()).Info("worker activated")
}

// Poll calls Update every interval until ctx is done. Failures are logged.
func (r *Registration) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Update(ctx); err != nil {
				log.WithError(err).Error("worker update failed")
			}
		}
	}
}

// ServeHTTP routes req through the active worker when it intercepts it, and
// straight to network otherwise.
func (r *Registration) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if active := r.Active(); active != nil && active.Intercepts(req) {
		resp := active.Respond(req.Context(), req)
		if err := resp.WriteTo(w); err != nil {
			log.WithError(err).Debug("failed to write response")
		}
		return
	}
	r.passthrough(w, req)
}

func (r *Registration) passthrough(w http.ResponseWriter, req *http.Request) {
	resp, err := r.network.Fetch(req.Context(), req)
	if err != nil {
		log.WithError(err).WithField("url", req.URL.String()).Warn("network request failed")
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.WithError(err).Debug("failed to copy response body")
	}
}
