package listing

import (
	"context"
	"slices"

	"github.com/dfryer1193/publog/blog/domain"
)

// find returns a copy of the first summary in group matching pred. Errors are
// domain.ErrCacheMiss when the group is not cached and
// domain.ErrPostNotFound when nothing matches.
func (c *Cache) find(ctx context.Context, group string, pred func(*domain.PostSummary) bool) (*domain.PostSummary, error) {
	posts, err := c.Read(ctx, group)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if pred(&posts[i]) {
			s := posts[i]
			return &s, nil
		}
	}
	return nil, domain.ErrPostNotFound
}

// FindPost looks a slug-mode post up by its directory slug.
func (c *Cache) FindPost(ctx context.Context, group, slug string) (*domain.PostSummary, error) {
	return c.find(ctx, group, func(s *domain.PostSummary) bool {
		return s.Slug == slug
	})
}

// FindPostByPath looks a timestamp-mode post up by date and time.
func (c *Cache) FindPostByPath(ctx context.Context, group, date, clock string) (*domain.PostSummary, error) {
	return c.find(ctx, group, func(s *domain.PostSummary) bool {
		return s.MatchesPath(date, clock)
	})
}

// FindByURLSlug matches the per-language url slug first and then the
// directory slug. When two posts claim the same slug the newer one wins.
func (c *Cache) FindByURLSlug(ctx context.Context, group, lang, urlSlug string) (*domain.PostSummary, error) {
	s, err := c.find(ctx, group, func(s *domain.PostSummary) bool {
		return s.LanguageSlugs[lang] == urlSlug
	})
	if err != domain.ErrPostNotFound {
		return s, err
	}
	return c.FindPost(ctx, group, urlSlug)
}

// FindByPreviousURLSlug finds the post that used to be reachable under
// urlSlug in lang, checking the per-language history before the post-level
// one.
func (c *Cache) FindByPreviousURLSlug(ctx context.Context, group, lang, urlSlug string) (*domain.PostSummary, error) {
	s, err := c.find(ctx, group, func(s *domain.PostSummary) bool {
		return slices.Contains(s.LanguagePreviousSlugs[lang], urlSlug)
	})
	if err != domain.ErrPostNotFound {
		return s, err
	}
	return c.find(ctx, group, func(s *domain.PostSummary) bool {
		return slices.Contains(s.PreviousURLSlugs, urlSlug)
	})
}
