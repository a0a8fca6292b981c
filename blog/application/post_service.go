// Package application holds the standard write path for posts.
package application

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/rs/zerolog/log"
)

// CacheRegenerator rebuilds a group's listing cache.
type CacheRegenerator interface {
	Regenerate(ctx context.Context, group string) error
}

// PostUpdate changes one language file of one version. Nil fields are left
// untouched.
type PostUpdate struct {
	Group      string
	Identifier domain.Identifier
	Language   string
	// Version is domain.LatestVersion for the live version.
	Version int

	Title       *string
	Description *string
	Status      *domain.Status
	Content     *string
	URLSlug     *string

	// Post-level fields, copied to every language file of the version.
	PrimaryLanguage    *string
	AllowVersionAccess *bool
}

func (u PostUpdate) touchesPostLevel() bool {
	return u.PrimaryLanguage != nil || u.AllowVersionAccess != nil
}

type PostService struct {
	store domain.Store
	cache CacheRegenerator
	now   func() time.Time

	// Service lifecycle context - cancelled when Close() is called
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool
}

func NewPostService(store domain.Store, cache CacheRegenerator) *PostService {
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	return &PostService{
		store:   store,
		cache:   cache,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		wg:      &wg,
		pending: make(map[string]bool),
	}
}

// Flush waits for scheduled cache regenerations to finish.
func (s *PostService) Flush() {
	s.wg.Wait()
}

// Close waits for scheduled regenerations and then cancels the lifecycle
// context.
func (s *PostService) Close() error {
	s.wg.Wait()
	s.cancel()
	return nil
}

// UpdatePost applies u to one language file. Post-level fields are copied
// to the other language files of the same version, and archiving the
// primary-language file archives its translations. The group's listing
// cache is regenerated in the background afterwards.
func (s *PostService) UpdatePost(ctx context.Context, u PostUpdate) (*domain.Post, error) {
	post, err := s.store.Read(ctx, u.Group, u.Identifier, u.Language, u.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s (%s): %w", u.Group, u.Identifier.Path(), u.Language, err)
	}

	now := s.now().UTC()
	applyUpdate(post, u, now)
	if err := s.store.Write(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", post.Path, err)
	}

	err = s.propagate(ctx, post, u, now)
	s.scheduleRegeneration(u.Group)
	return post, err
}

func applyUpdate(post *domain.Post, u PostUpdate, now time.Time) {
	m := &post.Metadata
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Content != nil {
		post.Content = *u.Content
	}
	if u.URLSlug != nil && *u.URLSlug != m.URLSlug {
		if m.URLSlug != "" && !slices.Contains(m.PreviousURLSlugs, m.URLSlug) {
			m.PreviousURLSlugs = append(m.PreviousURLSlugs, m.URLSlug)
		}
		m.URLSlug = *u.URLSlug
	}
	if u.Status != nil {
		if *u.Status == domain.StatusPublished && m.PublishedAt.IsZero() {
			m.PublishedAt = now
		}
		m.Status = *u.Status
	}
	applyPostLevel(m, u)
	m.UpdatedAt = now
}

func applyPostLevel(m *domain.Metadata, u PostUpdate) {
	if u.PrimaryLanguage != nil {
		m.PrimaryLanguage = *u.PrimaryLanguage
	}
	if u.AllowVersionAccess != nil {
		m.AllowVersionAccess = *u.AllowVersionAccess
	}
}

// propagate copies post-level fields and primary-language archival to the
// sibling language files of post's version.
func (s *PostService) propagate(ctx context.Context, post *domain.Post, u PostUpdate, now time.Time) error {
	archive := false
	if u.Status != nil && *u.Status == domain.StatusArchived {
		primary, err := s.store.PrimaryLanguage(ctx, post.Group, post.Identifier, post.Version)
		if err != nil {
			return err
		}
		archive = primary == post.Language
	}
	if !u.touchesPostLevel() && !archive {
		return nil
	}

	languages, err := s.store.ListLanguages(ctx, post.Group, post.Identifier, post.Version)
	if err != nil {
		return err
	}

	for _, lang := range languages {
		if lang == post.Language {
			continue
		}
		sibling, err := s.store.Read(ctx, post.Group, post.Identifier, lang, post.Version)
		if err != nil {
			return fmt.Errorf("failed to read translation %s: %w", lang, err)
		}
		applyPostLevel(&sibling.Metadata, u)
		if archive {
			sibling.Metadata.Status = domain.StatusArchived
		}
		sibling.Metadata.UpdatedAt = now
		if err := s.store.Write(ctx, sibling); err != nil {
			return fmt.Errorf("failed to write translation %s: %w", lang, err)
		}
	}
	return nil
}

// scheduleRegeneration queues one background regeneration per group; updates
// arriving before it starts share it.
func (s *PostService) scheduleRegeneration(group string) {
	if s.cache == nil {
		return
	}

	s.mu.Lock()
	if s.pending[group] {
		s.mu.Unlock()
		return
	}
	s.pending[group] = true
	s.mu.Unlock()

	s.wg.Go(func() {
		s.mu.Lock()
		delete(s.pending, group)
		s.mu.Unlock()

		if err := s.cache.Regenerate(s.ctx, group); err != nil {
			log.Error().Err(err).Str("group", group).Msg("Failed to regenerate listing cache")
		}
	})
}
