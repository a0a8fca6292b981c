// Package resolution maps requested group, identifier and language onto a
// concrete published language file.
package resolution

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/language"
	"github.com/rs/zerolog/log"
)

// Index is the subset of the listing cache the resolver reads. Every method
// may return domain.ErrCacheMiss, which means "ask storage".
type Index interface {
	Read(ctx context.Context, group string) ([]domain.PostSummary, error)
	Scan(ctx context.Context, group string) ([]domain.PostSummary, error)
	FindPost(ctx context.Context, group, slug string) (*domain.PostSummary, error)
	FindPostByPath(ctx context.Context, group, date, clock string) (*domain.PostSummary, error)
	FindByURLSlug(ctx context.Context, group, lang, urlSlug string) (*domain.PostSummary, error)
	FindByPreviousURLSlug(ctx context.Context, group, lang, urlSlug string) (*domain.PostSummary, error)
}

// Resolver holds no state of its own; it is safe for concurrent use.
type Resolver struct {
	storage   domain.Storage
	index     Index
	groups    domain.GroupRepository
	languages domain.LanguageService
	urls      *URLBuilder
}

// NewResolver returns a resolver. index may be nil, in which case every
// lookup goes to storage.
func NewResolver(storage domain.Storage, index Index, groups domain.GroupRepository, languages domain.LanguageService) *Resolver {
	return &Resolver{
		storage:   storage,
		index:     index,
		groups:    groups,
		languages: languages,
		urls:      NewURLBuilder(languages),
	}
}

// URLs returns the builder used for canonical URLs.
func (r *Resolver) URLs() *URLBuilder {
	return r.urls
}

// FetchPost resolves id in the highest version that has a published file in
// an acceptable language. Candidates are tried in the order
// [resolved, primary, ...available].
func (r *Resolver) FetchPost(ctx context.Context, group string, id domain.Identifier, lang string) (*domain.Post, error) {
	switch id := id.(type) {
	case domain.SlugIdentifier:
		return r.fetchSlug(ctx, group, id, lang)
	case domain.TimestampIdentifier:
		return r.fetchTimestamp(ctx, group, id, lang)
	default:
		return nil, domain.ErrPostNotFound
	}
}

func (r *Resolver) fetchSlug(ctx context.Context, group string, id domain.SlugIdentifier, lang string) (*domain.Post, error) {
	var versions []int
	if s, err := r.findPost(ctx, group, id.Slug); err == nil {
		versions = s.AvailableVersions
	} else {
		versions, err = r.storage.ListVersions(ctx, group, id)
		if err != nil {
			return nil, err
		}
	}
	return r.cascade(ctx, group, id, lang, versionsDescending(versions))
}

func (r *Resolver) fetchTimestamp(ctx context.Context, group string, id domain.TimestampIdentifier, lang string) (*domain.Post, error) {
	if post, ok := r.fastTimestamp(ctx, group, id, lang); ok {
		return post, nil
	}

	structure, err := r.storage.DetectStructure(ctx, group, id)
	if err != nil {
		return nil, err
	}
	switch structure {
	case domain.StructureVersioned:
		versions, err := r.storage.ListVersions(ctx, group, id)
		if err != nil {
			return nil, err
		}
		return r.cascade(ctx, group, id, lang, versionsDescending(versions))
	case domain.StructureLegacy:
		return r.cascade(ctx, group, id, lang, []int{domain.LegacyVersion})
	default:
		return nil, domain.ErrPostNotFound
	}
}

// fastTimestamp serves a timestamp post with a single content read when the
// listing cache already knows its live version and language statuses.
func (r *Resolver) fastTimestamp(ctx context.Context, group string, id domain.TimestampIdentifier, lang string) (*domain.Post, bool) {
	if r.index == nil {
		return nil, false
	}
	s, err := r.index.FindPostByPath(ctx, group, id.Date, id.Time)
	if err != nil {
		return nil, false
	}

	for _, candidate := range language.Candidates(lang, s.PrimaryLanguage, s.AvailableLanguages) {
		if s.LanguageStatuses[candidate] != domain.StatusPublished {
			continue
		}
		post, err := r.storage.Read(ctx, group, id, candidate, s.Version)
		if err == nil && post.IsPublished() {
			return post, true
		}
		// The cache is behind storage; let the slow path decide.
		return nil, false
	}
	return nil, false
}

// cascade walks versions in the given order and returns the first published
// candidate language file.
func (r *Resolver) cascade(ctx context.Context, group string, id domain.Identifier, lang string, versions []int) (*domain.Post, error) {
	if len(versions) == 0 {
		versions = []int{domain.LegacyVersion}
	}

	found := false
	for _, v := range versions {
		post, exists, err := r.publishedAt(ctx, group, id, lang, v, isPublished)
		if err != nil {
			return nil, err
		}
		if post != nil {
			return post, nil
		}
		found = found || exists
	}
	if found {
		return nil, domain.ErrUnpublished
	}
	return nil, domain.ErrPostNotFound
}

// publishedAt tries the candidate languages of one version. It reports
// whether any language file existed at all.
func (r *Resolver) publishedAt(ctx context.Context, group string, id domain.Identifier, lang string, version int, accept func(*domain.Post) bool) (*domain.Post, bool, error) {
	available, err := r.storage.ListLanguages(ctx, group, id, version)
	if err != nil {
		return nil, false, err
	}
	if len(available) == 0 {
		return nil, false, nil
	}

	primary, err := r.storage.PrimaryLanguage(ctx, group, id, version)
	if err != nil {
		return nil, true, err
	}

	for _, candidate := range language.Candidates(lang, primary, available) {
		post, err := r.storage.Read(ctx, group, id, candidate, version)
		if err != nil {
			if !errors.Is(err, domain.ErrPostNotFound) {
				log.Warn().Err(err).Str("group", group).Str("post", id.Path()).
					Str("language", candidate).Int("version", version).Msg("Skipping unreadable language file")
			}
			continue
		}
		if accept(post) {
			return post, true, nil
		}
	}
	return nil, true, nil
}

func isPublished(p *domain.Post) bool { return p.IsPublished() }

// isViewable admits archived files as well, for explicit version access.
func isViewable(p *domain.Post) bool {
	return p.IsPublished() || p.Metadata.Status == domain.StatusArchived
}

// FetchVersion reads a specific version of a slug post. Versions other than
// the live one are only served when the live version's primary-language
// file sets allow_version_access.
func (r *Resolver) FetchVersion(ctx context.Context, group string, id domain.Identifier, lang string, version int) (*domain.Post, error) {
	versions, err := r.storage.ListVersions(ctx, group, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(versions, version) {
		return nil, domain.ErrPostNotFound
	}

	live := domain.LiveVersion(versions)
	if version == live {
		return r.cascade(ctx, group, id, lang, []int{live})
	}

	allowed, err := r.VersionAccessAllowed(ctx, group, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrVersionAccessDenied
	}

	post, exists, err := r.publishedAt(ctx, group, id, lang, version, isViewable)
	if err != nil {
		return nil, err
	}
	if post == nil {
		if exists {
			return nil, domain.ErrUnpublished
		}
		return nil, domain.ErrPostNotFound
	}
	return post, nil
}

// VersionAccessAllowed reads allow_version_access from the live version in
// the post's primary language, never from a translation or an old version.
func (r *Resolver) VersionAccessAllowed(ctx context.Context, group string, id domain.Identifier) (bool, error) {
	versions, err := r.storage.ListVersions(ctx, group, id)
	if err != nil {
		return false, err
	}
	live := domain.LiveVersion(versions)

	primary, err := r.storage.PrimaryLanguage(ctx, group, id, live)
	if err != nil {
		return false, err
	}
	post, err := r.storage.Read(ctx, group, id, primary, live)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return post.Metadata.AllowVersionAccess, nil
}

// PublishedIn returns the highest published version of id in exactly lang,
// or domain.ErrPostNotFound.
func (r *Resolver) PublishedIn(ctx context.Context, group string, id domain.Identifier, lang string) (*domain.Post, error) {
	versions, err := r.storage.ListVersions(ctx, group, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		versions = []int{domain.LegacyVersion}
	}
	for _, v := range versionsDescending(versions) {
		post, err := r.storage.Read(ctx, group, id, lang, v)
		if err == nil && post.IsPublished() {
			return post, nil
		}
	}
	return nil, domain.ErrPostNotFound
}

// Languages returns every language id has a file in, across all versions.
func (r *Resolver) Languages(ctx context.Context, group string, id domain.Identifier) ([]string, error) {
	versions, err := r.storage.ListVersions(ctx, group, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		versions = []int{domain.LegacyVersion}
	}

	var all []string
	for _, v := range versionsDescending(versions) {
		langs, err := r.storage.ListLanguages(ctx, group, id, v)
		if err != nil {
			return nil, err
		}
		all = append(all, langs...)
	}
	return language.Dedupe(all), nil
}

// DirectorySlug maps a URL slug segment onto a directory slug using the
// listing cache, returning the segment itself when nothing matches.
func (r *Resolver) DirectorySlug(ctx context.Context, group, fileLang, segment string) string {
	if r.index == nil {
		return segment
	}
	if s, err := r.index.FindByURLSlug(ctx, group, fileLang, segment); err == nil {
		return s.Slug
	}
	if s, err := r.index.FindByPreviousURLSlug(ctx, group, fileLang, segment); err == nil {
		return s.Slug
	}
	for _, other := range r.languages.EnabledLanguages() {
		if s, err := r.index.FindByURLSlug(ctx, group, other, segment); err == nil {
			return s.Slug
		}
	}
	return segment
}

func (r *Resolver) findPost(ctx context.Context, group, slug string) (*domain.PostSummary, error) {
	if r.index == nil {
		return nil, domain.ErrCacheMiss
	}
	return r.index.FindPost(ctx, group, slug)
}

func versionsDescending(versions []int) []int {
	out := slices.Clone(versions)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
