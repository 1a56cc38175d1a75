// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swcache/internal/meta"
	"github.com/staranto/swcache/internal/registration"
)

// ServeCommandAction registers the worker, polls for version changes and
// serves HTTP until interrupted. A failed registration leaves the site
// served straight from the upstream until a later poll succeeds.
func ServeCommandAction(ctx context.Context, cmd *cli.Command) error {
	storage, err := NewStorage(ctx, cmd)
	if err != nil {
		return err
	}
	client, err := NewNetwork(cmd)
	if err != nil {
		return err
	}
	reg, err := registration.New(ScriptSource(cmd), storage, client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reg.Register(ctx); err != nil {
		log.WithError(err).Error("worker registration failed, serving without offline support")
	}
	go reg.Poll(ctx, cmd.Duration("interval"))

	ln, err := net.Listen("tcp", cmd.String("listen"))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:           reg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	log.WithField("addr", ln.Addr().String()).WithField("upstream", client.Upstream()).Info("serving")
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.Duration("grace"))
		err := srv.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func ServeCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "serve",
		Usage:     "serve the site through the cache worker",
		UsageText: `swcache serve --upstream URL [options]`,
		Flags:     NewServeFlags(meta.Config.Source),
		Action:    ServeCommandAction,
		Meta:      meta,
	}).Build()
}
