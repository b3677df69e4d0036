// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Count context keys already reclaimed by expiry",
		Long:  "The store expires keys on its own; sweep reports how many context keys were observed already gone at enumeration time.",
		RunE:  runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	n, err := app.Manager.CleanupExpired(cmd.Context())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Expired context keys observed: %d\n", n)
	return nil
}
