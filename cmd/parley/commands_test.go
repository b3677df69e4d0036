// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/config"
	"github.com/parley-dev/parley/internal/contextstore"
	"github.com/parley-dev/parley/internal/session"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "parley")
	assert.Contains(t, buf.String(), "serve")
	assert.Contains(t, buf.String(), "session")
	assert.Contains(t, buf.String(), "sweep")
	assert.Contains(t, buf.String(), "version")
}

func TestLoadConfig_BootstrapsDefaultOnFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)

	written := filepath.Join(home, ".config", "parley", "parley.yaml")
	_, err = os.Stat(written)
	require.NoError(t, err, "first run writes the commented default config")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "parley")
}

func TestSessionCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"session", "--help"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "list")
	assert.Contains(t, buf.String(), "show")
	assert.Contains(t, buf.String(), "delete")
}

func TestServeCommand_BadConfigPath(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"serve", "--config", "/nonexistent/path.yaml"})

	err := root.Execute()
	assert.Error(t, err)
}

// writeTestConfig writes a sqlite-backed config into a temp dir so separate
// command invocations observe the same data.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "parley.yaml")
	dbPath := filepath.Join(dir, "parley.db")

	content := fmt.Sprintf("store:\n  backend: sqlite\n  url: %s\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), buf.String())
	return buf.String()
}

func TestSessionCommands_SQLiteLifecycle(t *testing.T) {
	cfgPath := writeTestConfig(t)
	ctx := context.Background()

	out := run(t, "session", "list", "--config", cfgPath)
	assert.Contains(t, out, "No sessions found")

	// Seed a session directly through the wired app.
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	app, err := wireApp(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Log.Append(ctx, "order-42", []session.Item{
		{"role": "user", "content": "where is my parcel"},
	}))
	require.NoError(t, app.Contexts.Put(ctx, "order-42", contextstore.Object{"step": "tracking"}))
	require.NoError(t, app.Close())

	out = run(t, "session", "list", "--config", cfgPath)
	assert.Contains(t, out, "order-42")
	assert.Contains(t, out, "yes")

	out = run(t, "session", "show", "order-42", "--config", cfgPath)
	assert.Contains(t, out, "where is my parcel")
	assert.Contains(t, out, "tracking")

	out = run(t, "session", "delete", "order-42", "--config", cfgPath)
	assert.Contains(t, out, "log: true")
	assert.Contains(t, out, "context: true")

	out = run(t, "session", "list", "--config", cfgPath)
	assert.Contains(t, out, "No sessions found")
}

func TestSessionShow_UnknownSession(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := run(t, "session", "show", "ghost", "--config", cfgPath)
	assert.Contains(t, out, "not found")
}

func TestSweepCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out := run(t, "sweep", "--config", cfgPath)
	assert.Contains(t, out, "Expired context keys observed: 0")
}

func TestStatusCommand_NotRunning(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", "127.0.0.1:1"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "not running")
}

func TestStatusCommand_Running(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","store":"ok"}`))
	}))
	defer ts.Close()

	addr := strings.TrimPrefix(ts.URL, "http://")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr})

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ok (store: ok)")
}
