// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

// ActivateReport summarizes an Activate.
type ActivateReport struct {
	Cache   string    `json:"cache"`
	Deleted []string  `json:"deleted"`
	Failed  []Failure `json:"failed"`
}

// Activate deletes every cache generation other than the worker's own. It
// returns once all deletes have finished, so a caller that swaps the worker
// in afterwards never serves next to a stale generation.
func (w *Worker) Activate(ctx context.Context) ActivateReport {
	w.setState(StateActivating)
	defer w.setState(StateActivated)

	report := ActivateReport{Cache: w.version, Deleted: []string{}, Failed: []Failure{}}

	names, err := w.storage.Keys(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list caches")
		report.Failed = append(report.Failed, Failure{Error: err.Error()})
		return report
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, name := range names {
		if name == w.version {
			continue
		}
		g.Go(func() error {
			log.WithField("cache", name).Info("deleting stale cache")
			_, err := w.storage.Delete(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("cache", name).Warn("failed to delete stale cache")
				report.Failed = append(report.Failed, Failure{URL: name, Error: err.Error()})
				return nil
			}
			report.Deleted = append(report.Deleted, name)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Deleted)
	return report
}
