package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/doeshing/shai-bridge/internal/application/config"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", cfg.Preferences.DefaultModel)
	assert.Len(t, cfg.Models, 4)
	assert.True(t, filepath.IsAbs(cfg.Security.RulesFile))
	require.NoError(t, appconfig.Validate(cfg), "embedded defaults must validate")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadHydratesZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: local
    provider: ollama
history:
  path: ~/hist.db
`), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Preferences.DefaultModel)
	assert.Equal(t, 30, cfg.Preferences.TimeoutSeconds)
	assert.Equal(t, 10, cfg.Preferences.HistoryTurns)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.True(t, filepath.IsAbs(cfg.History.Path))
	assert.Equal(t, "1", cfg.ConfigFormatVersion)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [\n"), 0o600))
	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}

func TestPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	t.Setenv(PathEnv, path)
	assert.Equal(t, path, NewFileLoader("").Path())
}

func TestResetKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: []\n"), 0o600))

	cfg, backup, err := NewFileLoader(path).Reset()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Models)

	saved, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "models: []\n", string(saved))
}
