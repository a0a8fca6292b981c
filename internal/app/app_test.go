package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/internal/app"
	"github.com/dfryer1193/publog/internal/config"
	"github.com/dfryer1193/publog/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registry = `
default_language: en-US
languages: [en-US]
groups:
  - name: Blog
    slug: blog
    mode: slug
`

func newConfig(t *testing.T, backend string) *config.Config {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(registry), 0644))

	loader, err := config.NewLoader(writeFile(t, dir, "publog.yaml", "storage:\n  backend: "+backend+"\n"))
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)

	cfg.RegistryPath = registryPath
	cfg.ContentRoot = filepath.Join(dir, "content")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Database.Path = filepath.Join(dir, "publog.db")
	return cfg
}

func writeFile(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNew_SelectsBackend(t *testing.T) {
	for _, backend := range []string{config.BackendFilesystem, config.BackendDatabase} {
		t.Run(backend, func(t *testing.T) {
			a, err := app.New(newConfig(t, backend), nil, prometheus.NewRegistry())
			require.NoError(t, err)
			t.Cleanup(func() { a.Close() })

			if backend == config.BackendDatabase {
				assert.Same(t, a.Database, a.Store)
			} else {
				assert.Same(t, a.Files, a.Store)
			}
			assert.Len(t, a.Jobs(), 4)
		})
	}
}

func TestNew_RedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := newConfig(t, config.BackendFilesystem)
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	a, err := app.New(cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	testutil.Write(t, a.Files, testutil.File{Group: "blog", ID: testutil.Slug("hello"), Language: "en-US",
		Version: 1, Status: domain.StatusPublished})
	require.NoError(t, a.Cache.RegenerateIfNotInProgress(context.Background(), "blog"))

	posts, err := a.Cache.Read(context.Background(), "blog")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	// The lock is released after regenerating
	assert.Empty(t, mr.Keys())
}

func TestNew_InvalidRedisURL(t *testing.T) {
	cfg := newConfig(t, config.BackendFilesystem)
	cfg.Cache.RedisURL = "not a url"
	_, err := app.New(cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}
