// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running parley server's status",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18990", "server address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	client := newAPIClient(addr)
	var body struct {
		Status string `json:"status"`
		Store  string `json:"store"`
	}
	if err := client.getJSON("/api/v1/status", &body); err != nil {
		if errors.Is(err, ErrServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s (store: %s)\n", addr, body.Status, body.Store)
	return nil
}
