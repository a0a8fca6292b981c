package domain

import "context"

// Storage is the read side of a post store. A version argument of
// LegacyVersion addresses the post directory itself; Read additionally
// accepts LatestVersion to mean "the live version".
//
// Implementations perform no caching.
type Storage interface {
	// ListPosts returns every post identifier in a group.
	ListPosts(ctx context.Context, group *Group) ([]Identifier, error)
	// ListTimes returns the times present under a timestamp-mode date, ascending.
	ListTimes(ctx context.Context, group, date string) ([]string, error)
	// ListVersions returns ascending version numbers; empty if none.
	ListVersions(ctx context.Context, group string, id Identifier) ([]int, error)
	DetectStructure(ctx context.Context, group string, id Identifier) (Structure, error)
	// ListLanguages returns languages with a content file directly in the
	// addressed directory, sorted.
	ListLanguages(ctx context.Context, group string, id Identifier, version int) ([]string, error)
	// Read returns ErrPostNotFound, a *ParseError or an *IOError on failure.
	Read(ctx context.Context, group string, id Identifier, language string, version int) (*Post, error)
	// PrimaryLanguage resolves the per-post override, else the group
	// default, else the site default.
	PrimaryLanguage(ctx context.Context, group string, id Identifier, version int) (string, error)
}

// LatestVersion asks Read for the live version.
const LatestVersion = -1

// Writer is the write side of a post store.
type Writer interface {
	// Write creates or replaces the language file addressed by the post.
	Write(ctx context.Context, post *Post) error
	// PromoteToVersioned moves a legacy post's language files into v1.
	PromoteToVersioned(ctx context.Context, group string, id Identifier) error
}

// Store combines both sides.
type Store interface {
	Storage
	Writer
}

// LiveVersion returns the highest version, or LegacyVersion when there are none.
func LiveVersion(versions []int) int {
	live := LegacyVersion
	for _, v := range versions {
		if v > live {
			live = v
		}
	}
	return live
}
