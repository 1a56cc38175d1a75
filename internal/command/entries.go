// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/meta"
)

// entryRow is one line of entries output.
type entryRow struct {
	Key         string    `json:"key"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Bytes       int       `json:"bytes"`
	Size        string    `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
	Age         string    `json:"age"`
}

// EntriesCommandAction lists the entries of one generation, the current one
// unless named.
func EntriesCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	name := cmd.String("version-tag")
	if cmd.Args().Present() {
		name = cmd.Args().First()
	}

	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return err
	}

	// Open would create it.
	ok, err := storage.Has(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up cache %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("cache %q does not exist", name)
	}

	entries, err := readEntries(ctx, storage, name)
	if err != nil {
		return err
	}

	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryRow{
			Key:         e.Key,
			Status:      e.Status,
			ContentType: e.Header.Get("Content-Type"),
			Bytes:       e.Size(),
			Size:        humanize.Bytes(uint64(e.Size())),
			StoredAt:    e.StoredAt,
			Age:         humanize.Time(e.StoredAt),
		})
	}

	return Emit(cmd, rows, "key,status,size,age")
}

func EntriesCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "entries",
		Usage:     "list the entries of a cache generation",
		UsageText: `swcache entries [generation] [options]`,
		ArgsUsage: "[generation]",
		Action:    EntriesCommandAction,
		Meta:      meta,
	}).Build()
}
