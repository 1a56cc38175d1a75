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
	"github.com/staranto/swcache/internal/store"
)

// generationRow is one line of ls output.
type generationRow struct {
	Name    string    `json:"name"`
	Current bool      `json:"current"`
	Entries int       `json:"entries"`
	Bytes   int       `json:"bytes"`
	Size    string    `json:"size"`
	Newest  time.Time `json:"newest"`
	Age     string    `json:"age"`
}

// LsCommandAction lists cache generations with their entry counts and sizes.
func LsCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return err
	}

	names, err := storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list caches: %w", err)
	}

	current := cmd.String("version-tag")
	rows := make([]generationRow, 0, len(names))
	for _, name := range names {
		entries, err := readEntries(ctx, storage, name)
		if err != nil {
			return err
		}
		row := generationRow{Name: name, Current: name == current, Entries: len(entries)}
		for _, e := range entries {
			row.Bytes += e.Size()
			if e.StoredAt.After(row.Newest) {
				row.Newest = e.StoredAt
			}
		}
		row.Size = humanize.Bytes(uint64(row.Bytes))
		if !row.Newest.IsZero() {
			row.Age = humanize.Time(row.Newest)
		}
		rows = append(rows, row)
	}

	return Emit(cmd, rows, "name,current,entries,size,age")
}

// readEntries returns every entry of the named generation, in key order.
func readEntries(ctx context.Context, storage store.Storage, name string) ([]*store.Entry, error) {
	cache, err := storage.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of %q: %w", name, err)
	}

	entries := make([]*store.Entry, 0, len(keys))
	for _, key := range keys {
		e, ok, err := cache.Match(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q from %q: %w", key, name, err)
		}
		if !ok {
			// Deleted since Keys.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func LsCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "ls",
		Usage:     "list cache generations",
		UsageText: `swcache ls [options]`,
		Action:    LsCommandAction,
		Meta:      meta,
	}).Build()
}
