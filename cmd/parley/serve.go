// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/internal/server"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the parley HTTP API",
		Long:  "Load configuration, open the store backend, and serve the session API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(cfg.Logging, verbose)

	app, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "creating server")
	}
	srv.RegisterDeps(&server.Deps{Manager: app.Manager, Coordinator: app.Coordinator, Store: app.Store})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("parley listening", "addr", cfg.Server.Listen, "backend", cfg.Store.Backend)
	return srv.Start(ctx)
}
