// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/meta"
)

// resultRow is one line of install or activate output.
type resultRow struct {
	Cache  string `json:"cache"`
	Target string `json:"target"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// InstallCommandAction precaches the manifest into the current generation.
func InstallCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	w, err := NewWorker(ctx, cmd)
	if err != nil {
		return err
	}

	report := w.Install(ctx)
	rows := make([]resultRow, 0, len(report.Stored)+len(report.Failed))
	for _, u := range report.Stored {
		rows = append(rows, resultRow{Cache: report.Cache, Target: u, Status: "stored"})
	}
	for _, f := range report.Failed {
		rows = append(rows, resultRow{Cache: report.Cache, Target: f.URL, Status: "failed", Error: f.Error})
	}
	if len(report.Failed) > 0 {
		log.Warnf("%d of %d urls failed to precache", len(report.Failed), len(rows))
	}

	return Emit(cmd, rows, "target,status,error")
}

func InstallCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "install",
		Usage:     "precache the manifest into the current generation",
		UsageText: `swcache install --upstream URL [options]`,
		Action:    InstallCommandAction,
		Meta:      meta,
	}).Build()
}
