// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/meta"
)

// purgeRow is one line of purge output.
type purgeRow struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

// PurgeCommandAction deletes the named generations, or all of them.
func PurgeCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return err
	}

	names := cmd.Args().Slice()
	if cmd.Bool("all") {
		if len(names) > 0 {
			return errors.New("--all does not take generation names")
		}
		if names, err = storage.Keys(ctx); err != nil {
			return fmt.Errorf("failed to list caches: %w", err)
		}
	}
	if len(names) == 0 && !cmd.Bool("all") {
		return errors.New("name at least one generation, or pass --all")
	}

	rows := make([]purgeRow, 0, len(names))
	for _, name := range names {
		deleted, err := storage.Delete(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to delete cache %q: %w", name, err)
		}
		log.WithField("cache", name).WithField("deleted", deleted).Info("purge")
		rows = append(rows, purgeRow{Name: name, Deleted: deleted})
	}

	return Emit(cmd, rows, "name,deleted")
}

func PurgeCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "purge",
		Usage:     "delete cache generations",
		UsageText: `swcache purge [generation...] [options]`,
		ArgsUsage: "[generation...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "delete every generation",
			},
		},
		Action: PurgeCommandAction,
		Meta:   meta,
	}).Build()
}
