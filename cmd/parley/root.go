// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-dev/parley/internal/config"
)

// NewRootCmd creates the root parley command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Parley — session persistence for conversational agents",
		Long:          "Parley stores conversation logs, session metadata, and shared context records in a remote key-value store, with distributed locking for concurrent writers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newSessionCmd(),
		newSweepCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves the config file (flag, working directory, then the
// user config dir) and loads it. When no file exists anywhere, a commented
// default is written to the user config dir first, so the first run leaves
// something to edit; if even that fails, defaults plus env overrides apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		path = config.BootstrapConfig()
	}
	config.WarnInsecurePermissions(path)
	return config.Load(path)
}

func discoverConfig() string {
	if _, err := os.Stat("parley.yaml"); err == nil {
		return "parley.yaml"
	}
	if p, err := config.DefaultConfigPath(); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// setupLogging installs the process-wide slog handler from config, with the
// verbose flag forcing debug level.
func setupLogging(cfg config.LoggingConfig, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
