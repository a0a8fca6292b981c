package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dfryer1193/publog/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "publog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
content_root: /srv/content
log_level: debug
cache:
  memory_size: 32
  lock_stale_after: 45s
storage:
  backend: database
`)
	t.Setenv("PUBLOG_SERVER_PORT", "9090")

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/content", cfg.ContentRoot)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 32, cfg.Cache.MemorySize)
	assert.Equal(t, 45*time.Second, cfg.ListingConfig().LockStaleAfter)
	assert.True(t, cfg.Cache.FileEnabled)
	assert.Equal(t, config.BackendDatabase, cfg.Storage.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	loader, err := config.NewLoader(writeConfig(t, "storage:\n  backend: s3\n"))
	require.NoError(t, err)
	_, err = loader.Load()
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSwitchBackend_Persists(t *testing.T) {
	path := writeConfig(t, "content_root: content\n")

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	require.NoError(t, loader.SwitchBackend(context.Background(), config.BackendDatabase))

	reloaded, err := config.NewLoader(path)
	require.NoError(t, err)
	cfg, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, config.BackendDatabase, cfg.Storage.Backend)

	assert.Error(t, loader.SwitchBackend(context.Background(), "s3"))
}
