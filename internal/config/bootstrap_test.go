// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/config"
)

func TestBootstrapConfig_CreatesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := config.BootstrapConfig()
	require.Equal(t, filepath.Join(home, ".config", "parley", "parley.yaml"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, raw)

	// The written default must load cleanly.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
}

func TestBootstrapConfig_LeavesExistingFileAlone(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NotEmpty(t, config.BootstrapConfig())
	assert.Empty(t, config.BootstrapConfig(), "second call is a no-op")
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/someone")

	path, err := config.DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/someone/.config/parley/parley.yaml", path)
}
