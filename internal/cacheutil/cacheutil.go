// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cacheutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Dir resolves the base cache directory.
// Precedence:
//  1. SWCACHE_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/swcache
//
// Returns ("", false) if a base cannot be resolved.
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("SWCACHE_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "swcache"), true
	}
	return "", false
}

// EnsureBaseDir creates base, or the resolved default when base is empty.
// Returns the path that was created.
func EnsureBaseDir(base string) (string, error) {
	if base == "" {
		var ok bool
		if base, ok = Dir(); !ok {
			return "", fmt.Errorf("unable to resolve a cache directory; set SWCACHE_CACHE_DIR")
		}
	}
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return base, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return base, nil
}

// EncodeKey hashes k with MD5 and returns the hex string. Used to name
// entry files and objects so that arbitrary request URLs map to safe names.
func EncodeKey(k string) string {
	h := md5.New()
	_, _ = h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeName makes a generation name safe for use as a single path
// segment. DecodeName reverses it.
func EncodeName(name string) string {
	return url.PathEscape(name)
}

// DecodeName reverses EncodeName.
func DecodeName(segment string) (string, error) {
	return url.PathUnescape(segment)
}
