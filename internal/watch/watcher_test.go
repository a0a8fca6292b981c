package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dfryer1193/publog/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	groups []string
}

func (r *recorder) RegenerateIfNotInProgress(ctx context.Context, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, group)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.groups...)
}

func TestWatcher_RegeneratesTouchedGroupOnce(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "blog", "hello", "v1"), 0755))

	rec := &recorder{}
	w, err := watch.New(root, rec, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })

	dir := filepath.Join(root, "blog", "hello", "v1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.phk"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fr.phk"), []byte("b"), 0644))

	assert.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"blog"}, rec.seen())
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "news"), 0755))

	rec := &recorder{}
	w, err := watch.New(root, rec, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.MkdirAll(filepath.Join(root, "news", "2025-01-01"), 0755))
	assert.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresDotEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0755))

	rec := &recorder{}
	w, err := watch.New(root, rec, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(root, ".cache", "blog.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.seen())
}
