// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/network"
	"github.com/staranto/swcache/internal/registration"
	"github.com/staranto/swcache/internal/store"
	"github.com/staranto/swcache/internal/worker"
)

// DefaultVersionTag names the cache generation when nothing else does.
const DefaultVersionTag = "swcache-cache-v1"

// NewGlobalFlags returns the flags every subcommand accepts. ns is the
// subcommand name and is tried as a config file namespace before the bare
// key; path is the config file.
func NewGlobalFlags(ns, path string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-prefix",
			Usage:   "path prefix that always goes straight to the upstream",
			Sources: valueSources(ns, path, "api-prefix", "SWCACHE_API_PREFIX"),
			Value:   worker.DefaultAPIPrefix,
			Validator: func(value string) error {
				return FlagValidators(value, AbsolutePathValidator)
			},
		},
		&cli.StringFlag{
			Name:    "attrs",
			Aliases: []string{"a"},
			Usage:   "comma-separated list of attributes to include in results",
		},
		&cli.StringFlag{
			Name:    "bucket",
			Usage:   "S3 bucket for the s3 store",
			Sources: valueSources(ns, path, "bucket", "SWCACHE_BUCKET"),
		},
		&cli.StringFlag{
			Name:    "cache-dir",
			Usage:   "base directory for the disk store",
			Sources: valueSources(ns, path, "cache-dir", "SWCACHE_CACHE_DIR"),
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Usage:   "S3-compatible endpoint URL",
			Sources: valueSources(ns, path, "endpoint", "SWCACHE_ENDPOINT"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "maximum attempts per S3 call",
			Sources: valueSources(ns, path, "max-attempts", "SWCACHE_MAX_ATTEMPTS"),
		},
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "public origin of the site",
			Sources: valueSources(ns, path, "origin", "SWCACHE_ORIGIN"),
			Value:   "http://localhost:8080",
			Validator: func(value string) error {
				return FlagValidators(value, URLValidator)
			},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: valueSources(ns, path, "output"),
			Value:   "text",
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "prefix",
			Usage:   "key prefix inside the S3 bucket",
			Sources: valueSources(ns, path, "prefix", "SWCACHE_PREFIX"),
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "AWS shared config profile",
			Sources: valueSources(ns, path, "profile", "SWCACHE_PROFILE", "AWS_PROFILE"),
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region",
			Sources: valueSources(ns, path, "region", "SWCACHE_REGION", "AWS_REGION"),
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "cache store: memory, disk or s3",
			Sources: valueSources(ns, path, "store", "SWCACHE_STORE"),
			Value:   store.KindDisk,
			Validator: func(value string) error {
				return FlagValidators(value, StoreKindValidator)
			},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "upstream request timeout",
			Sources: valueSources(ns, path, "timeout", "SWCACHE_TIMEOUT"),
			Value:   network.DefaultTimeout,
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: valueSources(ns, path, "titles"),
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "upstream",
			Aliases: []string{"u"},
			Usage:   "upstream origin that serves the site",
			Sources: valueSources(ns, path, "upstream", "SWCACHE_UPSTREAM"),
			Validator: func(value string) error {
				return FlagValidators(value, URLValidator)
			},
		},
		&cli.StringFlag{
			Name:    "version-tag",
			Usage:   "cache generation name of the current worker",
			Sources: valueSources(ns, path, "version-tag", "SWCACHE_VERSION_TAG"),
			Value:   DefaultVersionTag,
			Validator: func(value string) error {
				return FlagValidators(value, NotBlankValidator)
			},
		},
	}
}

// NewServeFlags returns the flags only serve accepts.
func NewServeFlags(path string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "address to serve HTTP on",
			Sources: valueSources("serve", path, "listen", "SWCACHE_LISTEN"),
			Value:   ":8080",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "how often to check for a new version tag",
			Sources: valueSources("serve", path, "interval", "SWCACHE_INTERVAL"),
			Value:   registration.DefaultUpdateInterval,
		},
		&cli.DurationFlag{
			Name:  "grace",
			Usage: "how long to wait for in-flight requests on shutdown",
			Value: 10 * time.Second,
		},
	}
}

// valueSources chains envs, then the namespaced config key, then the bare
// config key.
func valueSources(ns, path, key string, envs ...string) cli.ValueSourceChain {
	var srcs []cli.ValueSource
	for _, env := range envs {
		srcs = append(srcs, cli.EnvVar(env))
	}
	if path != "" {
		srcs = append(srcs,
			yaml.YAML(ns+"."+key, altsrc.StringSourcer(path)),
			yaml.YAML(key, altsrc.StringSourcer(path)),
		)
	}
	return cli.NewValueSourceChain(srcs...)
}
