package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/rs/zerolog/log"
)

// ListingCache is the part of the listing cache the jobs use.
type ListingCache interface {
	Read(ctx context.Context, group string) ([]domain.PostSummary, error)
	Scan(ctx context.Context, group string) ([]domain.PostSummary, error)
	Regenerate(ctx context.Context, group string) error
}

// Restructure moves legacy posts into a v1 directory.
type Restructure struct {
	cache ListingCache
	store domain.Store
}

var _ Job = (*Restructure)(nil)

func NewRestructure(cache ListingCache, store domain.Store) *Restructure {
	return &Restructure{cache: cache, store: store}
}

func (j *Restructure) Name() string { return "restructure" }

// Run promotes every post the cache flags as legacy. Item failures are
// counted, and the cache is regenerated once at the end either way.
func (j *Restructure) Run(ctx context.Context, group string, p *Progress) (*Result, error) {
	posts, err := j.cache.Read(ctx, group)
	if errors.Is(err, domain.ErrCacheMiss) {
		posts, err = j.cache.Scan(ctx, group)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	var legacy []domain.PostSummary
	for _, s := range posts {
		if s.IsLegacyStructure {
			legacy = append(legacy, s)
		}
	}
	p.Total(len(legacy))

	for _, s := range legacy {
		if ctx.Err() != nil {
			break
		}
		id := s.Identifier()
		if _, err := j.store.Read(ctx, group, id, s.Language, domain.LegacyVersion); err != nil {
			p.Failed(id.Path(), err)
			continue
		}
		if err := j.store.PromoteToVersioned(ctx, group, id); err != nil {
			p.Failed(id.Path(), err)
			continue
		}
		p.Succeeded(id.Path())
	}

	if err := j.cache.Regenerate(context.WithoutCancel(ctx), group); err != nil {
		log.Error().Err(err).Str("group", group).Msg("Failed to regenerate listing cache after restructure")
	}
	return p.Result(), ctx.Err()
}
