package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/markdown"
	"github.com/rs/zerolog/log"
)

// errSkipPost marks identifiers with nothing to summarize.
var errSkipPost = errors.New("post has no content")

// builder scans storage into post summaries.
type builder struct {
	storage domain.Storage
}

// languageFacts is what a summary keeps about one language file.
type languageFacts struct {
	status        domain.Status
	urlSlug       string
	previousSlugs []string
}

func factsOf(p *domain.Post) languageFacts {
	return languageFacts{
		status:        p.Metadata.Status,
		urlSlug:       p.URLSlug(),
		previousSlugs: nonNil(p.Metadata.PreviousURLSlugs),
	}
}

// build returns the sorted summaries of every readable post in group. Posts
// that fail to read are logged and left out.
func (b *builder) build(ctx context.Context, group *domain.Group) ([]domain.PostSummary, error) {
	ids, err := b.storage.ListPosts(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts in %s: %w", group.Slug, err)
	}

	summaries := make([]domain.PostSummary, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := b.summarize(ctx, group, id)
		if errors.Is(err, errSkipPost) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("group", group.Slug).Str("post", id.Path()).Msg("Skipping unreadable post")
			continue
		}
		summaries = append(summaries, *s)
	}

	domain.SortSummaries(summaries)
	warnDuplicateURLSlugs(group.Slug, summaries)
	return summaries, nil
}

func (b *builder) summarize(ctx context.Context, group *domain.Group, id domain.Identifier) (*domain.PostSummary, error) {
	structure, err := b.storage.DetectStructure(ctx, group.Slug, id)
	if err != nil {
		return nil, err
	}
	if structure == domain.StructureEmpty {
		return nil, errSkipPost
	}

	versions, err := b.storage.ListVersions(ctx, group.Slug, id)
	if err != nil {
		return nil, err
	}
	live := domain.LiveVersion(versions)

	languages, err := b.storage.ListLanguages(ctx, group.Slug, id, live)
	if err != nil {
		return nil, err
	}
	if len(languages) == 0 {
		return nil, errSkipPost
	}

	primary, err := b.storage.PrimaryLanguage(ctx, group.Slug, id, live)
	if err != nil {
		return nil, err
	}
	summaryLanguage := primary
	if !slices.Contains(languages, summaryLanguage) {
		summaryLanguage = languages[0]
	}

	main, err := b.storage.Read(ctx, group.Slug, id, summaryLanguage, live)
	if err != nil {
		return nil, err
	}

	s := &domain.PostSummary{
		Group:                 group.Slug,
		Path:                  main.Path,
		Mode:                  id.Mode(),
		Title:                 main.Metadata.Title,
		Excerpt:               excerptOf(main),
		Status:                main.Metadata.Status,
		PublishedAt:           main.Metadata.PublishedAt,
		Language:              summaryLanguage,
		PrimaryLanguage:       primary,
		AvailableLanguages:    languages,
		LanguageStatuses:      make(map[string]domain.Status, len(languages)),
		LanguageSlugs:         make(map[string]string, len(languages)),
		LanguagePreviousSlugs: make(map[string][]string, len(languages)),
		Version:               live,
		AvailableVersions:     nonNilInts(versions),
		VersionStatuses:       make(map[int]domain.Status, len(versions)),
		IsLegacyStructure:     structure == domain.StructureLegacy,
		PreviousURLSlugs:      nonNil(main.Metadata.PreviousURLSlugs),
		AllowVersionAccess:    main.Metadata.AllowVersionAccess,
	}
	switch v := id.(type) {
	case domain.SlugIdentifier:
		s.Slug = v.Slug
		s.URLSlug = main.URLSlug()
	case domain.TimestampIdentifier:
		s.Date, s.Time = v.Date, v.Time
		s.URLSlug = main.Metadata.URLSlug
	}

	// Each language file is read once; unreadable translations keep the
	// directory slug and no history, and count as drafts.
	fallback := func(error) languageFacts {
		return languageFacts{status: domain.StatusDraft, urlSlug: s.Slug, previousSlugs: []string{}}
	}
	for _, lang := range languages {
		facts := factsOf(main)
		if lang != summaryLanguage {
			facts = b.readFacts(ctx, group.Slug, id, lang, live, fallback)
		}
		s.LanguageStatuses[lang] = facts.status
		s.LanguageSlugs[lang] = facts.urlSlug
		s.LanguagePreviousSlugs[lang] = facts.previousSlugs
	}

	for _, v := range versions {
		if v == live {
			s.VersionStatuses[v] = main.Metadata.Status
			continue
		}
		s.VersionStatuses[v] = b.versionStatus(ctx, group.Slug, id, v, primary)
	}

	return s, nil
}

// readFacts reads one language file, applying onError when it cannot be read.
func (b *builder) readFacts(ctx context.Context, group string, id domain.Identifier, lang string, version int, onError func(error) languageFacts) languageFacts {
	p, err := b.storage.Read(ctx, group, id, lang, version)
	if err != nil {
		log.Warn().Err(err).Str("group", group).Str("post", id.Path()).Str("language", lang).Msg("Failed to read translation metadata")
		return onError(err)
	}
	return factsOf(p)
}

// versionStatus is the status of a non-live version in its primary language,
// or in its first language when the primary is missing there.
func (b *builder) versionStatus(ctx context.Context, group string, id domain.Identifier, version int, primary string) domain.Status {
	langs, err := b.storage.ListLanguages(ctx, group, id, version)
	if err != nil || len(langs) == 0 {
		return domain.StatusDraft
	}
	lang := primary
	if !slices.Contains(langs, lang) {
		lang = langs[0]
	}
	p, err := b.storage.Read(ctx, group, id, lang, version)
	if err != nil {
		return domain.StatusDraft
	}
	return p.Metadata.Status
}

func excerptOf(p *domain.Post) string {
	if p.Metadata.Description != "" {
		return p.Metadata.Description
	}
	return markdown.Excerpt(p.Content)
}

// warnDuplicateURLSlugs logs url slugs claimed by more than one post in the
// same language. Lookups return the first match in listing order.
func warnDuplicateURLSlugs(group string, summaries []domain.PostSummary) {
	owners := make(map[[2]string]string)
	for _, s := range summaries {
		for lang, slug := range s.LanguageSlugs {
			if slug == "" {
				continue
			}
			key := [2]string{lang, slug}
			if owner, ok := owners[key]; ok && owner != s.Path {
				log.Warn().Str("group", group).Str("language", lang).Str("url_slug", slug).
					Str("first", owner).Str("second", s.Path).Msg("Duplicate url slug")
				continue
			}
			owners[key] = s.Path
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
