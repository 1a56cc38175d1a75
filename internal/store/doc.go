// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package store models cache storage as an external key-value store: a set
// of named cache generations, each mapping request keys to response
// snapshots. Backends live in memory, on local disk, or in an S3 bucket.
package store
