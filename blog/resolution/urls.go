package resolution

import (
	"strconv"
	"strings"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/language"
)

// URLBuilder produces canonical public URLs.
//
//	/{lang}/{group}
//	/{lang}/{group}/{url_slug}
//	/{lang}/{group}/{url_slug}/v/{N}
//	/{lang}/{group}/{date}/{time}
type URLBuilder struct {
	languages domain.LanguageService
}

func NewURLBuilder(languages domain.LanguageService) *URLBuilder {
	return &URLBuilder{languages: languages}
}

// Canonical returns the URL language code for a file language.
func (b *URLBuilder) Canonical(fileLanguage string) string {
	return language.Canonical(fileLanguage, b.languages.EnabledLanguages())
}

// FileLanguage maps a URL language code onto an enabled language, or returns
// it unchanged when nothing matches.
func (b *URLBuilder) FileLanguage(urlLanguage string) string {
	if lang, ok := language.Resolve(urlLanguage, b.languages.EnabledLanguages()); ok {
		return lang
	}
	return urlLanguage
}

// ListingURL is the group's index page in fileLanguage.
func (b *URLBuilder) ListingURL(fileLanguage, group string) string {
	return join(b.Canonical(fileLanguage), group)
}

// PostURL links a resolved language file.
func (b *URLBuilder) PostURL(post *domain.Post) string {
	return b.identifierURL(post.Group, post.Identifier, post.Language, post.URLSlug())
}

// VersionURL links a specific version of a slug post.
func (b *URLBuilder) VersionURL(post *domain.Post, version int) string {
	return join(b.PostURL(post), "v", strconv.Itoa(version))
}

// SummaryURL links a cached post in fileLanguage.
func (b *URLBuilder) SummaryURL(s *domain.PostSummary, fileLanguage string) string {
	return b.identifierURL(s.Group, s.Identifier(), fileLanguage, s.URLSlugFor(fileLanguage))
}

func (b *URLBuilder) identifierURL(group string, id domain.Identifier, fileLanguage, urlSlug string) string {
	lang := b.Canonical(fileLanguage)
	switch id := id.(type) {
	case domain.TimestampIdentifier:
		return join(lang, group, id.Date, id.Time)
	case domain.SlugIdentifier:
		if urlSlug == "" {
			urlSlug = id.Slug
		}
		return join(lang, group, urlSlug)
	default:
		return join(lang, group)
	}
}

func join(parts ...string) string {
	return "/" + strings.TrimPrefix(strings.Join(parts, "/"), "/")
}
