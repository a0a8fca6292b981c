// Package fallback decides where to send a request that resolution could not
// serve: the same content in another language or at another time, a group
// listing, or nowhere.
package fallback

import (
	"context"
	"errors"
	"slices"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/language"
	"github.com/dfryer1193/publog/blog/resolution"
	"github.com/rs/zerolog/log"
)

// ErrNoFallback means the request should render a plain 404.
var ErrNoFallback = errors.New("no fallback")

// Plan is a redirect to the closest servable page.
type Plan struct {
	Location string
	// Listing is set when the plan gave up on the content and points at a
	// group listing.
	Listing bool
}

// step produces a plan, or nil to let the next step try.
type step func(ctx context.Context) (*Plan, error)

// run evaluates steps in order; the first plan wins.
func run(ctx context.Context, steps ...step) (*Plan, error) {
	for _, s := range steps {
		plan, err := s(ctx)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
	}
	return nil, ErrNoFallback
}

type Planner struct {
	resolver  *resolution.Resolver
	storage   domain.Storage
	groups    domain.GroupRepository
	languages domain.LanguageService
}

func NewPlanner(resolver *resolution.Resolver, storage domain.Storage, groups domain.GroupRepository, languages domain.LanguageService) *Planner {
	return &Planner{resolver: resolver, storage: storage, groups: groups, languages: languages}
}

// Plan picks a fallback for a request whose resolution failed with reason.
// lang is the URL language code of the request. It returns ErrNoFallback
// when a plain 404 is the right answer.
func (p *Planner) Plan(ctx context.Context, shape domain.PathShape, lang string, reason error) (*Plan, error) {
	fileLang := p.resolver.URLs().FileLanguage(lang)

	switch shape := shape.(type) {
	case domain.ListingPath:
		if errors.Is(reason, domain.ErrGroupNotFound) {
			return run(ctx, p.firstGroupListing)
		}
	case domain.SlugPath:
		if isContentMiss(reason) {
			return p.planSlug(ctx, shape, fileLang)
		}
	case domain.TimestampPath:
		if isContentMiss(reason) {
			return p.planTimestamp(ctx, shape, fileLang)
		}
	}
	return nil, ErrNoFallback
}

func isContentMiss(err error) bool {
	return errors.Is(err, domain.ErrPostNotFound) || errors.Is(err, domain.ErrUnpublished)
}

// planSlug prefers the same post in another language and otherwise the
// group listing.
func (p *Planner) planSlug(ctx context.Context, shape domain.SlugPath, fileLang string) (*Plan, error) {
	group, err := p.groups.GetGroup(ctx, shape.Group)
	if err != nil {
		return nil, ErrNoFallback
	}
	slug := p.resolver.DirectorySlug(ctx, group.Slug, fileLang, shape.Slug)
	id := domain.SlugIdentifier{Slug: slug}

	return run(ctx,
		p.otherLanguages(group.Slug, id, fileLang),
		p.groupListing(group.Slug, fileLang),
	)
}

// planTimestamp tries other languages at the same slot, then other times on
// the same date in listing order, then the group listing.
func (p *Planner) planTimestamp(ctx context.Context, shape domain.TimestampPath, fileLang string) (*Plan, error) {
	group, err := p.groups.GetGroup(ctx, shape.Group)
	if err != nil {
		return nil, ErrNoFallback
	}
	id := domain.TimestampIdentifier{Date: shape.Date, Time: shape.Time}

	return run(ctx,
		p.otherLanguages(group.Slug, id, fileLang),
		p.otherTimes(group.Slug, id, fileLang),
		p.groupListing(group.Slug, fileLang),
	)
}

// otherLanguages returns the first of [default, ...available] minus the
// language already tried that has any published version.
func (p *Planner) otherLanguages(group string, id domain.Identifier, tried string) step {
	return func(ctx context.Context) (*Plan, error) {
		available, err := p.resolver.Languages(ctx, group, id)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Str("post", id.Path()).Msg("Failed to list post languages")
			return nil, nil
		}
		if len(available) == 0 {
			return nil, nil
		}

		candidates := language.Dedupe(append([]string{p.languages.DefaultLanguage()}, available...))
		for _, lang := range candidates {
			if lang == tried || !slices.Contains(available, lang) {
				continue
			}
			post, err := p.resolver.PublishedIn(ctx, group, id, lang)
			if err != nil {
				continue
			}
			return &Plan{Location: p.resolver.URLs().PostURL(post)}, nil
		}
		return nil, nil
	}
}

// otherTimes resolves the remaining times of the same date.
func (p *Planner) otherTimes(group string, id domain.TimestampIdentifier, fileLang string) step {
	return func(ctx context.Context) (*Plan, error) {
		times, err := p.storage.ListTimes(ctx, group, id.Date)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Str("date", id.Date).Msg("Failed to list times")
			return nil, nil
		}
		for _, t := range times {
			if t == id.Time {
				continue
			}
			other := domain.TimestampIdentifier{Date: id.Date, Time: t}
			post, err := p.resolver.FetchPost(ctx, group, other, fileLang)
			if err != nil {
				continue
			}
			return &Plan{Location: p.resolver.URLs().PostURL(post)}, nil
		}
		return nil, nil
	}
}

func (p *Planner) groupListing(group, fileLang string) step {
	return func(ctx context.Context) (*Plan, error) {
		return &Plan{Location: p.resolver.URLs().ListingURL(fileLang, group), Listing: true}, nil
	}
}

// firstGroupListing sends the site root or an unknown group to the first
// configured group in the default language.
func (p *Planner) firstGroupListing(ctx context.Context) (*Plan, error) {
	groups, err := p.groups.ListGroups(ctx)
	if err != nil || len(groups) == 0 {
		return nil, nil
	}
	return &Plan{
		Location: p.resolver.URLs().ListingURL(p.languages.DefaultLanguage(), groups[0].Slug),
		Listing:  true,
	}, nil
}
