// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage stored sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(),
		newSessionShowCmd(),
		newSessionDeleteCmd(),
	)

	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions known to the store",
		RunE:  runSessionList,
	}
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sessions, err := app.Manager.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(sessions.IDs) == 0 {
		_, _ = fmt.Fprintln(out, "No sessions found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tMESSAGES\tCONTEXT\tUPDATED")
	for _, id := range sessions.IDs {
		ov, err := app.Manager.Overview(ctx, id)
		if err != nil {
			return err
		}
		updated := "-"
		if ov.Info != nil {
			updated = ov.Info.UpdatedAt.UTC().Format(time.RFC3339)
		}
		hasCtx := "no"
		if ov.HasContext {
			hasCtx = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", id, ov.MessageCount, hasCtx, updated)
	}
	return tw.Flush()
}

func newSessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's metadata, recent messages, and context",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionShow,
	}

	cmd.Flags().Int("limit", 10, "number of recent messages to show (0 shows all)")

	return cmd
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	sessionID := args[0]
	limit, _ := cmd.Flags().GetInt("limit")

	ov, err := app.Manager.Overview(ctx, sessionID)
	if err != nil {
		return err
	}
	if ov.Info == nil && ov.MessageCount == 0 && !ov.HasContext {
		_, _ = fmt.Fprintf(out, "Session %q not found\n", sessionID)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Session: %s\n", sessionID)
	if ov.Info != nil {
		_, _ = fmt.Fprintf(out, "Created: %s\n", ov.Info.CreatedAt.UTC().Format(time.RFC3339))
		_, _ = fmt.Fprintf(out, "Updated: %s\n", ov.Info.UpdatedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(out, "Messages: %d\n", ov.MessageCount)

	items, err := app.Log.Items(ctx, sessionID, limit)
	if err != nil {
		return err
	}
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(out, "  %s\n", raw)
	}

	if ov.Context != nil {
		raw, err := json.MarshalIndent(*ov.Context, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Context:\n%s\n", raw)
	} else {
		_, _ = fmt.Fprintln(out, "Context: none")
	}

	return nil
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session's messages, metadata, and context",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionDelete,
	}
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out := cmd.OutOrStdout()
	sessionID := args[0]

	d, err := app.Manager.DeleteSession(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	if !d.Any() {
		_, _ = fmt.Fprintf(out, "Session %q not found\n", sessionID)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Deleted session %q (log: %t, context: %t)\n", sessionID, d.Log, d.Context)
	return nil
}
