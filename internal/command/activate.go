// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/meta"
	"github.com/staranto/swcache/internal/store"
	"github.com/staranto/swcache/internal/worker"
)

// ActivateCommandAction deletes every generation except the current one.
func ActivateCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return err
	}

	report := activate(ctx, cmd, storage)
	rows := make([]resultRow, 0, len(report.Deleted)+len(report.Failed))
	for _, name := range report.Deleted {
		rows = append(rows, resultRow{Cache: report.Cache, Target: name, Status: "deleted"})
	}
	for _, f := range report.Failed {
		rows = append(rows, resultRow{Cache: report.Cache, Target: f.URL, Status: "failed", Error: f.Error})
	}

	return Emit(cmd, rows, "target,status,error")
}

var errNoUpstream = errors.New("no upstream configured")

func noUpstream(context.Context, *http.Request) (*http.Response, error) {
	return nil, errNoUpstream
}

// activate runs garbage collection only, so it needs no upstream.
func activate(ctx context.Context, cmd *cli.Command, storage store.Storage) worker.ActivateReport {
	w, err := worker.New(cmd.String("version-tag"), cmd.String("origin"), storage, worker.FetcherFunc(noUpstream))
	if err != nil {
		log.WithError(err).Error("failed to create worker")
		return worker.ActivateReport{Cache: cmd.String("version-tag")}
	}
	return w.Activate(ctx)
}

func ActivateCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "activate",
		Usage:     "delete every cache generation except the current one",
		UsageText: `swcache activate [options]`,
		Action:    ActivateCommandAction,
		Meta:      meta,
	}).Build()
}
