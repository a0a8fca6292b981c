package resolution_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/listing"
	"github.com/dfryer1193/publog/blog/persistence"
	"github.com/dfryer1193/publog/blog/resolution"
	"github.com/dfryer1193/publog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	reg   *persistence.Registry
	store *persistence.FileSystemStorage
}

func newEnv(t *testing.T, defaultLanguage string, languages []string) *env {
	reg := testutil.Registry(t, defaultLanguage, languages,
		testutil.SlugGroup("blog"),
		testutil.TimestampGroup("news"),
	)
	return &env{reg: reg, store: testutil.Filesystem(t, reg)}
}

// cached returns a memory-only cache regenerated for every group.
func (e *env) cached(t *testing.T, storage domain.Storage) *listing.Cache {
	t.Helper()
	c, err := listing.NewCache(listing.Config{MemoryEnabled: true}, storage, e.reg)
	require.NoError(t, err)
	for _, g := range []string{"blog", "news"} {
		require.NoError(t, c.Regenerate(context.Background(), g))
	}
	return c
}

func (e *env) resolver(t *testing.T, withCache bool) *resolution.Resolver {
	if !withCache {
		return resolution.NewResolver(e.store, nil, e.reg, e.reg)
	}
	return resolution.NewResolver(e.store, e.cached(t, e.store), e.reg, e.reg)
}

func bothModes(t *testing.T, fn func(t *testing.T, withCache bool)) {
	t.Run("storage", func(t *testing.T) { fn(t, false) })
	t.Run("cached", func(t *testing.T) { fn(t, true) })
}

func TestFetchPost_VersionPrecedence(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US"})
	id := testutil.Slug("hello")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 2, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 3, Status: domain.StatusDraft},
	)

	bothModes(t, func(t *testing.T, withCache bool) {
		post, err := e.resolver(t, withCache).FetchPost(context.Background(), "blog", id, "en-US")
		require.NoError(t, err)
		assert.Equal(t, 2, post.Version)
	})
}

func TestFetchPost_LanguagePriorityIsNotAlphabetical(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US", "fr-FR", "de-DE"})
	id := testutil.Slug("hello")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished,
			Meta: domain.Metadata{PrimaryLanguage: "en-US"}},
	)

	bothModes(t, func(t *testing.T, withCache bool) {
		post, err := e.resolver(t, withCache).FetchPost(context.Background(), "blog", id, "de-DE")
		require.NoError(t, err)
		assert.Equal(t, "en-US", post.Language)
	})
}

func TestFetchPost_BaseCodeMatchesDialect(t *testing.T) {
	e := newEnv(t, "en-GB", []string{"en-GB"})
	id := testutil.Slug("hello")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "en-GB", Version: 1, Status: domain.StatusPublished},
	)

	post, err := e.resolver(t, false).FetchPost(context.Background(), "blog", id, "en")
	require.NoError(t, err)
	assert.Equal(t, "en-GB", post.Language)
}

func TestFetchPost_SkipsUnpublishedLanguages(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US", "fr-FR"})
	id := testutil.Slug("hello")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: 1, Status: domain.StatusDraft},
	)

	post, err := e.resolver(t, false).FetchPost(context.Background(), "blog", id, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, "en-US", post.Language)
}

func TestFetchPost_NotFoundAndUnpublished(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US"})
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: testutil.Slug("draft"), Language: "en-US", Version: 1, Status: domain.StatusDraft},
	)

	bothModes(t, func(t *testing.T, withCache bool) {
		r := e.resolver(t, withCache)
		_, err := r.FetchPost(context.Background(), "blog", testutil.Slug("draft"), "en-US")
		assert.ErrorIs(t, err, domain.ErrUnpublished)

		_, err = r.FetchPost(context.Background(), "blog", testutil.Slug("missing"), "en-US")
		assert.ErrorIs(t, err, domain.ErrPostNotFound)
	})
}

func TestFetchPost_LegacySlugPost(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US"})
	id := testutil.Slug("old")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: domain.LegacyVersion, Status: domain.StatusPublished},
	)

	post, err := e.resolver(t, false).FetchPost(context.Background(), "blog", id, "en-US")
	require.NoError(t, err)
	assert.True(t, post.IsLegacyStructure)
}

// countingStorage counts the calls the timestamp paths make.
type countingStorage struct {
	domain.Storage
	reads     atomic.Int32
	structure atomic.Int32
}

func (c *countingStorage) Read(ctx context.Context, group string, id domain.Identifier, lang string, version int) (*domain.Post, error) {
	c.reads.Add(1)
	return c.Storage.Read(ctx, group, id, lang, version)
}

func (c *countingStorage) DetectStructure(ctx context.Context, group string, id domain.Identifier) (domain.Structure, error) {
	c.structure.Add(1)
	return c.Storage.DetectStructure(ctx, group, id)
}

func TestFetchPost_TimestampFastPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "en-US", []string{"en-US", "fr-FR"})
	id := testutil.Stamp("2025-01-01", "09:00")
	testutil.Write(t, e.store,
		testutil.File{Group: "news", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "news", ID: id, Language: "fr-FR", Version: 1, Status: domain.StatusPublished},
	)

	counting := &countingStorage{Storage: e.store}
	cache := e.cached(t, e.store)
	r := resolution.NewResolver(counting, cache, e.reg, e.reg)

	post, err := r.FetchPost(ctx, "news", id, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", post.Language)
	assert.Equal(t, int32(1), counting.reads.Load(), "cache hit reads only the content file")
	assert.Zero(t, counting.structure.Load())

	// Without a cache entry the slow path detects the structure.
	_, err = r.FetchPost(ctx, "news", testutil.Stamp("2025-01-02", "10:00"), "fr-FR")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
	assert.Equal(t, int32(1), counting.structure.Load())
}

func TestFetchPost_TimestampLegacy(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US", "fr-FR"})
	id := testutil.Stamp("2024-06-01", "08:00")
	testutil.Write(t, e.store,
		testutil.File{Group: "news", ID: id, Language: "fr-FR", Version: domain.LegacyVersion, Status: domain.StatusPublished},
	)

	bothModes(t, func(t *testing.T, withCache bool) {
		post, err := e.resolver(t, withCache).FetchPost(context.Background(), "news", id, "en-US")
		require.NoError(t, err)
		assert.Equal(t, "fr-FR", post.Language)
		assert.Equal(t, domain.LegacyVersion, post.Version)
	})
}

func TestFetchVersion_AccessGate(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		files   []testutil.File
		wantErr error
	}{
		{
			name: "allowed by live primary",
			files: []testutil.File{
				{Language: "en-US", Version: 2, Status: domain.StatusPublished, Meta: domain.Metadata{AllowVersionAccess: true}},
				{Language: "fr-FR", Version: 2, Status: domain.StatusPublished},
			},
		},
		{
			name: "translation cannot allow",
			files: []testutil.File{
				{Language: "en-US", Version: 2, Status: domain.StatusPublished},
				{Language: "fr-FR", Version: 2, Status: domain.StatusPublished, Meta: domain.Metadata{AllowVersionAccess: true}},
			},
			wantErr: domain.ErrVersionAccessDenied,
		},
		{
			name: "old version cannot allow itself",
			files: []testutil.File{
				{Language: "en-US", Version: 2, Status: domain.StatusPublished},
			},
			wantErr: domain.ErrVersionAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "en-US", []string{"en-US", "fr-FR"})
			id := testutil.Slug("hello")
			files := append([]testutil.File{
				{Language: "en-US", Version: 1, Status: domain.StatusArchived, Meta: domain.Metadata{AllowVersionAccess: true}},
			}, tt.files...)
			for i := range files {
				files[i].Group, files[i].ID = "blog", id
			}
			testutil.Write(t, e.store, files...)

			post, err := e.resolver(t, false).FetchVersion(ctx, "blog", id, "en-US", 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, post.Version)
		})
	}
}

func TestFetchVersion_UnknownVersion(t *testing.T) {
	e := newEnv(t, "en-US", []string{"en-US"})
	id := testutil.Slug("hello")
	testutil.Write(t, e.store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
	)

	_, err := e.resolver(t, false).FetchVersion(context.Background(), "blog", id, "en-US", 7)
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	post, err := e.resolver(t, false).FetchVersion(context.Background(), "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, post.Version)
}
