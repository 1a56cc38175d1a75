// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import "fmt"

// Kinds accepted by New.
const (
	KindMemory = "memory"
	KindDisk   = "disk"
	KindS3     = "s3"
)

// Kinds lists the valid backend names.
var Kinds = []string{KindMemory, KindDisk, KindS3}

// Options carries backend-specific settings for New. Only the fields of the
// chosen kind are read.
type Options struct {
	Dir string

	S3     S3API
	Bucket string
	Prefix string
}

// New builds the Storage named by kind.
func New(kind string, opts Options) (Storage, error) {
	switch kind {
	case KindMemory:
		return NewMemory(), nil
	case "", KindDisk:
		return NewDisk(opts.Dir)
	case KindS3:
		return NewS3(opts.S3, opts.Bucket, opts.Prefix)
	}
	return nil, fmt.Errorf("unknown store kind %q: must be one of %v", kind, Kinds)
}
