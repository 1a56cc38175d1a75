// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidName is returned for an empty generation name.
	ErrInvalidName = errors.New("cache name must not be empty")
	// ErrInvalidKey is returned for an entry without a key.
	ErrInvalidKey = errors.New("cache entry key must not be empty")
	// ErrNotCacheable is returned for responses a cache must refuse.
	ErrNotCacheable = errors.New("response is not cacheable")
)

// Entry is a stored response snapshot. Entries are treated as immutable once
// stored; a later Put with the same Key replaces the whole entry.
type Entry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// Size is the body length in bytes.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Body)
}

// Storage is the set of cache generations.
type Storage interface {
	// Open returns the named generation, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Lookup returns the named generation only if it exists. It never
	// creates anything.
	Lookup(ctx context.Context, name string) (Cache, bool, error)
	// Has reports whether the named generation exists.
	Has(ctx context.Context, name string) (bool, error)
	// Keys returns all generation names in sorted order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the generation and every entry in it. It reports
	// whether the generation existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Cache is a single generation.
type Cache interface {
	Name() string
	// Put stores e under e.Key, replacing any existing entry.
	Put(ctx context.Context, e *Entry) error
	// Match returns the entry for key, if any.
	Match(ctx context.Context, key string) (*Entry, bool, error)
	// Keys returns the keys of all stored entries in sorted order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the entry for key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// RequestKey is the identity of a request in a cache: method plus absolute
// URL.
func RequestKey(method, url string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + url
}

func validate(e *Entry) error {
	if e == nil || e.Key == "" {
		return ErrInvalidKey
	}
	return nil
}
