// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	swaws "github.com/staranto/swcache/internal/aws"
	"github.com/staranto/swcache/internal/config"
	"github.com/staranto/swcache/internal/meta"
	"github.com/staranto/swcache/internal/network"
	"github.com/staranto/swcache/internal/output"
	"github.com/staranto/swcache/internal/registration"
	"github.com/staranto/swcache/internal/store"
	"github.com/staranto/swcache/internal/worker"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// CommandBuilder constructs a cli.Command for a subcommand using a
// consistent pattern: metadata, command flags plus global flags, and the
// action.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	ArgsUsage string
	Flags     []cli.Flag
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (b *CommandBuilder) Build() *cli.Command {
	return &cli.Command{
		Name:      b.Name,
		Usage:     b.Usage,
		UsageText: b.UsageText,
		ArgsUsage: b.ArgsUsage,
		Metadata: map[string]any{
			"meta": b.Meta,
		},
		Flags:  append(b.Flags, NewGlobalFlags(b.Name, b.Meta.Config.Source)...),
		Action: b.Action,
	}
}

// NewStorage builds the cache store selected by --store.
func NewStorage(ctx context.Context, cmd *cli.Command) (store.Storage, error) {
	kind := cmd.String("store")
	opts := store.Options{Dir: cmd.String("cache-dir")}

	if kind == store.KindS3 {
		opts.Bucket = cmd.String("bucket")
		opts.Prefix = cmd.String("prefix")
		if opts.Bucket == "" {
			return nil, errors.New("the s3 store needs --bucket")
		}

		awsCfg, err := swaws.LoadAWSConfig(ctx,
			swaws.WithProfile(cmd.String("profile")),
			swaws.WithRegion(cmd.String("region")),
			swaws.WithMaxAttempts(cmd.Int("max-attempts")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		opts.S3 = swaws.NewS3(awsCfg, swaws.WithS3Endpoint(cmd.String("endpoint")))
	}

	s, err := store.New(kind, opts)
	if err != nil {
		return nil, err
	}
	log.WithField("store", kind).Debug("cache store ready")
	return s, nil
}

// NewNetwork builds the upstream client from --upstream and --timeout.
func NewNetwork(cmd *cli.Command) (*network.Client, error) {
	upstream := cmd.String("upstream")
	if upstream == "" {
		return nil, errors.New("--upstream is required")
	}
	return network.New(upstream, network.WithTimeout(cmd.Duration("timeout")))
}

// reloadable are the script keys a config reload may change, with the env
// var that pins each one.
var reloadable = []struct{ key, env string }{
	{"version-tag", "SWCACHE_VERSION_TAG"},
	{"origin", "SWCACHE_ORIGIN"},
	{"api-prefix", "SWCACHE_API_PREFIX"},
}

// ScriptSource yields the worker script built from the flags. The config
// file is re-read on every call, and its version-tag, origin, api-prefix and
// precache replace the startup values. A key given on the command line or
// in its env var keeps the startup value. Registration only acts on a new
// version tag, so the other keys take effect with the next version bump.
func ScriptSource(cmd *cli.Command) registration.ScriptSource {
	m := GetMeta(cmd)

	return func(context.Context) (registration.Script, error) {
		values := map[string]string{}
		for _, r := range reloadable {
			values[r.key] = cmd.String(r.key)
		}

		if m.Config.Source != "" {
			if _, err := config.Load(cmd.Name); err != nil {
				log.WithError(err).Warn("failed to reload config")
			} else {
				for _, r := range reloadable {
					if onCommandLine(m.Args, r.key) || os.Getenv(r.env) != "" {
						continue
					}
					if v, err := config.GetString(r.key); err == nil && v != "" {
						values[r.key] = v
					}
				}
			}
		}

		script := registration.Script{
			Version:   values["version-tag"],
			Origin:    values["origin"],
			APIPrefix: values["api-prefix"],
		}

		precache, err := config.GetStringSlice("precache", worker.DefaultPrecache)
		if err != nil {
			return registration.Script{}, fmt.Errorf("invalid precache list: %w", err)
		}
		script.Precache = precache
		return script, nil
	}
}

// NewWorker builds a worker for the current script without registering it.
func NewWorker(ctx context.Context, cmd *cli.Command) (*worker.Worker, error) {
	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return nil, err
	}
	client, err := NewNetwork(cmd)
	if err != nil {
		return nil, err
	}
	script, err := ScriptSource(cmd)(ctx)
	if err != nil {
		return nil, err
	}
	return worker.New(script.Version, script.Origin, storage, client,
		worker.WithAPIPrefix(script.APIPrefix),
		worker.WithPrecache(script.Precache...),
	)
}

// Emit renders results according to --output, --attrs and --titles.
func Emit(cmd *cli.Command, results any, defaultAttrs string) error {
	attrs := cmd.String("attrs")
	if attrs == "" {
		attrs = defaultAttrs
	}
	return output.Emit(writer(cmd), results, output.Options{
		Format: cmd.String("output"),
		Attrs:  output.ParseAttrs(attrs),
		Titles: cmd.Bool("titles"),
	})
}

func writer(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

// onCommandLine reports whether --name was passed explicitly in args.
func onCommandLine(args []string, name string) bool {
	return slices.ContainsFunc(args, func(a string) bool {
		return a == "--"+name || strings.HasPrefix(a, "--"+name+"=")
	})
}
