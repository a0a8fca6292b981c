package application_test

import (
	"context"
	"sync"
	"testing"

	"github.com/dfryer1193/publog/blog/application"
	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/persistence"
	"github.com/dfryer1193/publog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	mu     sync.Mutex
	groups []string
}

func (r *recordingCache) Regenerate(ctx context.Context, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, group)
	return nil
}

func newService(t *testing.T) (*application.PostService, *persistence.FileSystemStorage, *recordingCache) {
	reg := testutil.Registry(t, "en-US", []string{"en-US", "fr-FR", "de-DE"}, testutil.SlugGroup("blog"))
	store := testutil.Filesystem(t, reg)
	cache := &recordingCache{}
	svc := application.NewPostService(store, cache)
	t.Cleanup(func() { svc.Close() })
	return svc, store, cache
}

func ptr[T any](v T) *T { return &v }

func TestUpdatePost_AppliesFields(t *testing.T) {
	ctx := context.Background()
	svc, store, cache := newService(t)
	id := testutil.Slug("hello")
	testutil.Write(t, store, testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1,
		Status: domain.StatusDraft, Meta: domain.Metadata{URLSlug: "hello"}})

	post, err := svc.UpdatePost(ctx, application.PostUpdate{
		Group: "blog", Identifier: id, Language: "en-US", Version: domain.LatestVersion,
		Title:   ptr("New title"),
		Status:  ptr(domain.StatusPublished),
		URLSlug: ptr("hello-world"),
		Content: ptr("Updated.\n"),
	})
	require.NoError(t, err)
	svc.Flush()

	got, err := store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Metadata.Title)
	assert.Equal(t, "Updated.\n", got.Content)
	assert.Equal(t, "hello-world", got.Metadata.URLSlug)
	assert.Equal(t, []string{"hello"}, got.Metadata.PreviousURLSlugs, "old url slug is kept for redirects")
	assert.True(t, got.IsPublished())
	assert.False(t, got.Metadata.PublishedAt.IsZero())
	assert.Equal(t, post.Metadata.UpdatedAt.Unix(), got.Metadata.UpdatedAt.Unix())

	assert.Equal(t, []string{"blog"}, cache.groups)
}

func TestUpdatePost_PropagatesPostLevelFields(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	id := testutil.Slug("hello")
	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 2, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: 2, Status: domain.StatusDraft},
	)

	_, err := svc.UpdatePost(ctx, application.PostUpdate{
		Group: "blog", Identifier: id, Language: "en-US", Version: domain.LatestVersion,
		PrimaryLanguage:    ptr("fr-FR"),
		AllowVersionAccess: ptr(true),
	})
	require.NoError(t, err)

	for _, lang := range []string{"en-US", "fr-FR"} {
		p, err := store.Read(ctx, "blog", id, lang, 2)
		require.NoError(t, err)
		assert.Equal(t, "fr-FR", p.Metadata.PrimaryLanguage, lang)
		assert.True(t, p.Metadata.AllowVersionAccess, lang)
	}
	fr, err := store.Read(ctx, "blog", id, "fr-FR", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, fr.Metadata.Status, "statuses are not propagated")

	old, err := store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.Empty(t, old.Metadata.PrimaryLanguage, "other versions are untouched")
}

func TestUpdatePost_ArchivingPrimaryArchivesTranslations(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	id := testutil.Slug("hello")
	testutil.Write(t, store,
		testutil.File{Group: "blog", ID: id, Language: "en-US", Version: 1, Status: domain.StatusPublished},
		testutil.File{Group: "blog", ID: id, Language: "fr-FR", Version: 1, Status: domain.StatusPublished},
	)

	// Archiving a translation leaves the primary alone.
	_, err := svc.UpdatePost(ctx, application.PostUpdate{
		Group: "blog", Identifier: id, Language: "fr-FR", Version: 1, Status: ptr(domain.StatusArchived),
	})
	require.NoError(t, err)
	en, err := store.Read(ctx, "blog", id, "en-US", 1)
	require.NoError(t, err)
	assert.True(t, en.IsPublished())

	_, err = svc.UpdatePost(ctx, application.PostUpdate{
		Group: "blog", Identifier: id, Language: "fr-FR", Version: 1, Status: ptr(domain.StatusPublished),
	})
	require.NoError(t, err)
	_, err = svc.UpdatePost(ctx, application.PostUpdate{
		Group: "blog", Identifier: id, Language: "en-US", Version: 1, Status: ptr(domain.StatusArchived),
	})
	require.NoError(t, err)

	fr, err := store.Read(ctx, "blog", id, "fr-FR", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, fr.Metadata.Status)
}

func TestUpdatePost_MissingPost(t *testing.T) {
	svc, _, cache := newService(t)

	_, err := svc.UpdatePost(context.Background(), application.PostUpdate{
		Group: "blog", Identifier: testutil.Slug("missing"), Language: "en-US", Version: domain.LatestVersion,
		Title: ptr("x"),
	})
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
	svc.Flush()
	assert.Empty(t, cache.groups)
}
