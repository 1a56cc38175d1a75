// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/staranto/swcache/internal/store"
)

// Failure records one precache URL that could not be stored.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// InstallReport summarizes an Install.
type InstallReport struct {
	Cache  string    `json:"cache"`
	Stored []string  `json:"stored"`
	Failed []Failure `json:"failed"`
}

// Install opens the worker's cache generation and precaches the manifest.
// Failures are logged and recorded in the report; they never stop the
// worker from moving on to activation.
func (w *Worker) Install(ctx context.Context) InstallReport {
	w.setState(StateInstalling)
	defer w.setState(StateInstalled)

	report := InstallReport{Cache: w.version, Stored: []string{}, Failed: []Failure{}}

	cache, err := w.storage.Open(ctx, w.version)
	if err != nil {
		log.WithError(err).WithField("cache", w.version).Error("precache failed: cannot open cache")
		for _, raw := range w.precache {
			report.Failed = append(report.Failed, Failure{URL: raw, Error: err.Error()})
		}
		return report
	}
	log.WithField("cache", w.version).Info("cache opened")

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, raw := range w.precache {
		g.Go(func() error {
			err := w.precacheOne(ctx, cache, raw)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("url", raw).Warn("precache failed")
				report.Failed = append(report.Failed, Failure{URL: raw, Error: err.Error()})
				return nil
			}
			report.Stored = append(report.Stored, raw)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Stored)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].URL < report.Failed[j].URL })

	log.WithField("cache", w.version).
		WithField("stored", len(report.Stored)).
		WithField("failed", len(report.Failed)).
		Info("install complete")
	return report
}

func (w *Worker) precacheOne(ctx context.Context, cache store.Cache, raw string) error {
	ref, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid precache URL: %w", err)
	}
	target := w.origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpResp, err := w.network.Fetch(ctx, req)
	if err != nil {
		return err
	}
	resp, err := ReadResponse(httpResp)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return fmt.Errorf("bad response status %d", resp.Status)
	}
	return w.put(ctx, cache, w.Key(req), resp)
}
