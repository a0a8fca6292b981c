package persistence_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/persistence"
	"github.com/dfryer1193/publog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) (*persistence.FileSystemStorage, *persistence.Registry) {
	reg := testutil.Registry(t, "en-US", []string{"en-US", "fr-FR"},
		testutil.SlugGroup("blog"),
		testutil.TimestampGroup("news"),
		domain.Group{Name: "Docs", Slug: "docs", Mode: domain.ModeSlug, PrimaryLanguage: "fr-FR"},
	)
	return testutil.Filesystem(t, reg), reg
}

func TestFileSystemStorage_DetectStructure(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: testutil.Slug("versioned"), Language: "en-US", Version: 1},
		testutil.File{Group: "blog", ID: testutil.Slug("legacy"), Language: "en-US", Version: domain.LegacyVersion},
	)
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "blog", "empty"), 0755))

	tests := []struct {
		slug string
		want domain.Structure
	}{
		{"versioned", domain.StructureVersioned},
		{"legacy", domain.StructureLegacy},
		{"empty", domain.StructureEmpty},
		{"missing", domain.StructureEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			got, err := store.DetectStructure(ctx, "blog", testutil.Slug(tt.slug))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSystemStorage_ListVersionsAndLanguages(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)
	id := testutil.Slug("hello")

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 10},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: 2},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 2},
	)
	// Stray files and directories are ignored
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "blog", "hello", "drafts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "blog", "hello", "v2", "notes.txt"), []byte("x"), 0644))

	versions, err := store.ListVersions(ctx, "blog", id)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, versions)

	languages, err := store.ListLanguages(ctx, "blog", id, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "fr-FR"}, languages)

	missing, err := store.ListVersions(ctx, "blog", testutil.Slug("nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFileSystemStorage_Read(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)
	id := testutil.Slug("hello")

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 2, Status: domain.StatusDraft, Body: "draft body\n"},
	)

	post, err := store.Read(ctx, "blog", id, "en-US", domain.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, post.Version)
	assert.Equal(t, domain.StatusDraft, post.Metadata.Status)
	assert.Equal(t, "draft body\n", post.Content)
	assert.Equal(t, "blog/hello/v2/en-US.phk", post.Path)
	assert.Equal(t, []int{1, 2}, post.AvailableVersions)
	assert.False(t, post.IsLegacyStructure)

	post, err = store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.True(t, post.IsPublished())

	_, err = store.Read(ctx, "blog", id, "fr-FR", 1)
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestFileSystemStorage_ReadCorruptFile(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)

	dir := filepath.Join(store.Root(), "blog", "broken", "v1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en-US.phk"), []byte("no front matter"), 0644))

	_, err := store.Read(ctx, "blog", testutil.Slug("broken"), "en-US", 1)
	var parseErr *domain.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.True(t, domain.IsNotFound(err), "parse errors resolve as not found")
}

func TestFileSystemStorage_ListPosts(t *testing.T) {
	ctx := context.Background()
	store, reg := newFS(t)

	testutil.Write(t, store,
		testutil.File{Group: "news", ID: testutil.Stamp("2025-01-01", "14:00"), Language: "en-US", Version: 1},
		testutil.File{Group: "news", ID: testutil.Stamp("2025-01-01", "09:00"), Language: "en-US", Version: 1},
		testutil.File{Group: "news", ID: testutil.Stamp("2025-01-02", "08:30"), Language: "en-US", Version: domain.LegacyVersion},
		testutil.File{Group: "blog", ID: testutil.Slug("b"), Language: "en-US", Version: 1},
		testutil.File{Group: "blog", ID: testutil.Slug("a"), Language: "en-US", Version: 1},
	)
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "news", "not-a-date"), 0755))

	news, err := reg.GetGroup(ctx, "news")
	require.NoError(t, err)
	ids, err := store.ListPosts(ctx, news)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identifier{
		testutil.Stamp("2025-01-01", "09:00"),
		testutil.Stamp("2025-01-01", "14:00"),
		testutil.Stamp("2025-01-02", "08:30"),
	}, ids)

	times, err := store.ListTimes(ctx, "news", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "14:00"}, times)

	blog, err := reg.GetGroup(ctx, "blog")
	require.NoError(t, err)
	ids, err = store.ListPosts(ctx, blog)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identifier{testutil.Slug("a"), testutil.Slug("b")}, ids)
}

func TestFileSystemStorage_PrimaryLanguage(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: testutil.Slug("override"), Language: "en-US", Version: 1,
			Meta: domain.Metadata{PrimaryLanguage: "fr-FR"}},
		testutil.File{Group: "blog", ID: testutil.Slug("plain"), Language: "en-US", Version: 1},
		testutil.File{Group: "docs", ID: testutil.Slug("guide"), Language: "en-US", Version: 1},
	)

	tests := []struct {
		group, slug, want string
	}{
		{"blog", "override", "fr-FR"},
		{"blog", "plain", "en-US"},
		{"docs", "guide", "fr-FR"},
	}
	for _, tt := range tests {
		got, err := store.PrimaryLanguage(ctx, tt.group, testutil.Slug(tt.slug), domain.LatestVersion)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.group, tt.slug)
	}
}

func TestFileSystemStorage_PromoteToVersioned(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)
	id := testutil.Slug("old")

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: domain.LegacyVersion, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: domain.LegacyVersion, Status: domain.StatusDraft},
	)

	require.NoError(t, store.PromoteToVersioned(ctx, "blog", id))

	structure, err := store.DetectStructure(ctx, "blog", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StructureVersioned, structure)

	languages, err := store.ListLanguages(ctx, "blog", id, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "fr-FR"}, languages)

	legacy, err := store.ListLanguages(ctx, "blog", id, domain.LegacyVersion)
	require.NoError(t, err)
	assert.Empty(t, legacy)

	post, err := store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, post.Metadata.Version)
	assert.True(t, post.IsPublished())

	// Promoting again is a no-op
	require.NoError(t, store.PromoteToVersioned(ctx, "blog", id))

	err = store.PromoteToVersioned(ctx, "blog", testutil.Slug("missing"))
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestFileSystemStorage_PromoteWithCorruptSibling(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)
	id := testutil.Slug("mixed")

	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: domain.LegacyVersion, Status: domain.StatusPublished},
	)
	postDir := filepath.Join(store.Root(), "blog", "mixed")
	require.NoError(t, os.WriteFile(filepath.Join(postDir, "fr-FR.phk"), []byte("no front matter"), 0644))

	for attempt := 1; attempt <= 2; attempt++ {
		err := store.PromoteToVersioned(ctx, "blog", id)
		var parseErr *domain.ParseError
		require.True(t, errors.As(err, &parseErr), "attempt %d: %v", attempt, err)

		structure, err := store.DetectStructure(ctx, "blog", id)
		require.NoError(t, err)
		assert.Equal(t, domain.StructureLegacy, structure)

		post, err := store.Read(ctx, "blog", id, "en-US", domain.LatestVersion)
		require.NoError(t, err)
		assert.True(t, post.IsPublished())
	}

	entries, err := os.ReadDir(postDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "unexpected directory %s", e.Name())
	}

	// Once repaired the post promotes normally
	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: domain.LegacyVersion, Status: domain.StatusDraft},
	)
	require.NoError(t, store.PromoteToVersioned(ctx, "blog", id))
	languages, err := store.ListLanguages(ctx, "blog", id, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "fr-FR"}, languages)
}

func TestFileSystemStorage_PromoteFinishesLeftovers(t *testing.T) {
	ctx := context.Background()
	store, _ := newFS(t)
	id := testutil.Slug("half")

	// An earlier promotion moved en-US but left both legacy files behind
	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Body: "Edited after promotion.\n"},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: domain.LegacyVersion},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: domain.LegacyVersion, Status: domain.StatusPublished},
	)

	require.NoError(t, store.PromoteToVersioned(ctx, "blog", id))

	legacy, err := store.ListLanguages(ctx, "blog", id, domain.LegacyVersion)
	require.NoError(t, err)
	assert.Empty(t, legacy)

	en, err := store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.Equal(t, "Edited after promotion.\n", en.Content)

	fr, err := store.Read(ctx, "blog", id, "fr-FR", 1)
	require.NoError(t, err)
	assert.True(t, fr.IsPublished())
	assert.Equal(t, 1, fr.Metadata.Version)
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	require.NoError(t, persistence.WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, persistence.WriteFileAtomic(path, []byte("two"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
