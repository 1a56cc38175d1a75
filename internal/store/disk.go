// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"

	"github.com/staranto/swcache/internal/cacheutil"
)

const (
	entrySuffix = ".json"
	tmpPattern  = ".entry-*"
)

// Disk is a Storage rooted at a directory. Each generation is a
// subdirectory; each entry is a JSON file named by the MD5 of its key.
type Disk struct {
	base string
}

// NewDisk returns a Disk rooted at base, creating it as needed. An empty
// base resolves to SWCACHE_CACHE_DIR or the user cache directory.
func NewDisk(base string) (*Disk, error) {
	base, err := cacheutil.EnsureBaseDir(base)
	if err != nil {
		return nil, err
	}
	return &Disk{base: base}, nil
}

// Base is the root directory.
func (d *Disk) Base() string { return d.base }

func (d *Disk) dir(name string) string {
	return filepath.Join(d.base, cacheutil.EncodeName(name))
}

func (d *Disk) Open(_ context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	dir := d.dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &diskCache{name: name, dir: dir}, nil
}

func (d *Disk) Lookup(ctx context.Context, name string) (Cache, bool, error) {
	ok, err := d.Has(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	return &diskCache{name: name, dir: d.dir(name)}, true, nil
}

func (d *Disk) Has(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	info, err := os.Stat(d.dir(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (d *Disk) Keys(_ context.Context) ([]string, error) {
	items, err := os.ReadDir(d.base)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		name, err := cacheutil.DecodeName(item.Name())
		if err != nil {
			log.WithError(err).Debugf("skipping unrecognized cache directory %s", item.Name())
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Disk) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := d.Has(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	if err := os.RemoveAll(d.dir(name)); err != nil {
		return false, fmt.Errorf("failed to remove cache %q: %w", name, err)
	}
	return true, nil
}

type diskCache struct {
	name string
	dir  string
}

func (c *diskCache) Name() string { return c.name }

func (c *diskCache) path(key string) string {
	return filepath.Join(c.dir, cacheutil.EncodeKey(key)+entrySuffix)
}

// Put writes to a temp file and renames it into place so readers never see
// a partial entry.
func (c *diskCache) Put(_ context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path(e.Key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

func (c *diskCache) Match(_ context.Context, key string) (*Entry, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read from cache: %w", err)
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	// An MD5 collision is not a hit.
	if e.Key != key {
		return nil, false, nil
	}
	return e, true, nil
}

func (c *diskCache) Keys(_ context.Context) ([]string, error) {
	items, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache %q: %w", c.name, err)
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() || strings.HasPrefix(item.Name(), ".") || !strings.HasSuffix(item.Name(), entrySuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, item.Name()))
		if err != nil {
			log.WithError(err).Warnf("failed to read cache file %s", item.Name())
			continue
		}
		e, err := decodeEntry(data)
		if err != nil {
			log.WithError(err).Warnf("skipping corrupt cache file %s", item.Name())
			continue
		}
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *diskCache) Delete(_ context.Context, key string) (bool, error) {
	err := os.Remove(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return true, nil
}
