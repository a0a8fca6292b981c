package domain

import (
	"time"
)

// Status is the publication state of one language file of one version.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// LegacyVersion is the version number used for posts whose language files
// live directly in the post directory, without a v{N} subdirectory.
const LegacyVersion = 0

// DefaultLanguage is the last-resort primary language.
const DefaultLanguage = "en"

// Metadata is the front matter of a language file.
type Metadata struct {
	Title              string    `yaml:"title,omitempty"`
	Description        string    `yaml:"description,omitempty"`
	Status             Status    `yaml:"status,omitempty"`
	Slug               string    `yaml:"slug,omitempty"`
	URLSlug            string    `yaml:"url_slug,omitempty"`
	PreviousURLSlugs   []string  `yaml:"previous_url_slugs,omitempty"`
	AllowVersionAccess bool      `yaml:"allow_version_access,omitempty"`
	PrimaryLanguage    string    `yaml:"primary_language,omitempty"`
	Version            int       `yaml:"version,omitempty"`
	PublishedAt        time.Time `yaml:"published_at,omitempty"`
	CreatedAt          time.Time `yaml:"created_at,omitempty"`
	UpdatedAt          time.Time `yaml:"updated_at,omitempty"`
}

// Post is one language-version instance of a piece of content.
// Versions are append-only: a new version supersedes the previous one, but
// older versions are never deleted.
type Post struct {
	Group      string
	Identifier Identifier
	Language   string
	// Version is LegacyVersion for posts stored without version directories.
	Version  int
	Metadata Metadata
	Content  string
	// Path is the file path relative to the content root,
	// e.g. "blog/hello/v2/en.phk".
	Path string

	IsLegacyStructure  bool
	AvailableLanguages []string
	AvailableVersions  []int
}

// IsPublished reports whether this language file is published.
func (p *Post) IsPublished() bool {
	return p != nil && p.Metadata.Status == StatusPublished
}

// URLSlug returns the SEO slug for this post, falling back to the internal
// directory slug.
func (p *Post) URLSlug() string {
	if p.Metadata.URLSlug != "" {
		return p.Metadata.URLSlug
	}
	if s, ok := p.Identifier.(SlugIdentifier); ok {
		return s.Slug
	}
	return ""
}

// Structure describes how a post directory is laid out on storage.
type Structure int

const (
	StructureEmpty Structure = iota
	StructureVersioned
	StructureLegacy
)

func (s Structure) String() string {
	switch s {
	case StructureVersioned:
		return "versioned"
	case StructureLegacy:
		return "legacy"
	default:
		return "empty"
	}
}
