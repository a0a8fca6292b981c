package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PostSummary is the content-stripped projection of a post stored in the
// listing cache.
type PostSummary struct {
	Group string `json:"group"`
	Slug  string `json:"slug,omitempty"`
	// URLSlug is the SEO slug of the summary's language.
	URLSlug     string    `json:"url_slug,omitempty"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	Path        string    `json:"path"`
	Mode        Mode      `json:"mode"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Status      Status    `json:"status"`
	PublishedAt time.Time `json:"published_at"`

	Language              string              `json:"language"`
	PrimaryLanguage       string              `json:"primary_language"`
	AvailableLanguages    []string            `json:"available_languages"`
	LanguageStatuses      map[string]Status   `json:"language_statuses"`
	LanguageSlugs         map[string]string   `json:"language_slugs"`
	LanguagePreviousSlugs map[string][]string `json:"language_previous_slugs"`

	Version           int            `json:"version"`
	AvailableVersions []int          `json:"available_versions"`
	VersionStatuses   map[int]Status `json:"-"`
	IsLegacyStructure bool           `json:"is_legacy_structure"`

	// PreviousURLSlugs carries the legacy post-level slug history.
	PreviousURLSlugs   []string `json:"previous_url_slugs,omitempty"`
	AllowVersionAccess bool     `json:"allow_version_access"`
}

type summaryAlias PostSummary

type summaryJSON struct {
	*summaryAlias
	VersionStatuses map[string]Status `json:"version_statuses"`
}

// MarshalJSON writes version_statuses with stringified integer keys.
func (s PostSummary) MarshalJSON() ([]byte, error) {
	statuses := make(map[string]Status, len(s.VersionStatuses))
	for v, st := range s.VersionStatuses {
		statuses[strconv.Itoa(v)] = st
	}
	alias := summaryAlias(s)
	return json.Marshal(summaryJSON{summaryAlias: &alias, VersionStatuses: statuses})
}

// UnmarshalJSON parses version_statuses keys back to integers.
func (s *PostSummary) UnmarshalJSON(data []byte) error {
	aux := summaryJSON{summaryAlias: (*summaryAlias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.VersionStatuses = make(map[int]Status, len(aux.VersionStatuses))
	for k, st := range aux.VersionStatuses {
		v, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("invalid version key %q: %w", k, err)
		}
		s.VersionStatuses[v] = st
	}
	return nil
}

// Identifier rebuilds the post identifier from the summary.
func (s *PostSummary) Identifier() Identifier {
	if s.Mode == ModeTimestamp {
		return TimestampIdentifier{Date: s.Date, Time: s.Time}
	}
	return SlugIdentifier{Slug: s.Slug}
}

// HasLanguage reports whether the summary lists lang as available.
func (s *PostSummary) HasLanguage(lang string) bool {
	return slices.Contains(s.AvailableLanguages, lang)
}

// URLSlugFor returns the SEO slug used in URLs for lang.
func (s *PostSummary) URLSlugFor(lang string) string {
	if slug, ok := s.LanguageSlugs[lang]; ok && slug != "" {
		return slug
	}
	return s.Slug
}

// MatchesPath reports whether the summary's stored path contains date/time.
func (s *PostSummary) MatchesPath(date, clock string) bool {
	return strings.Contains(s.Path, date+"/"+clock)
}

// SortSummaries orders summaries newest first. Timestamp posts sort by their
// date and time, slug posts by publication date, ties broken by slug.
func SortSummaries(summaries []PostSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Mode == ModeTimestamp && b.Mode == ModeTimestamp {
			ka, kb := a.Date+" "+a.Time, b.Date+" "+b.Time
			if ka != kb {
				return ka > kb
			}
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.Slug < b.Slug
	})
}
