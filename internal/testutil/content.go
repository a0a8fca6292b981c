// Package testutil builds content trees and registries for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/persistence"
)

// Registry returns a registry with the given default language, enabled
// languages and groups.
func Registry(t testing.TB, defaultLanguage string, languages []string, groups ...domain.Group) *persistence.Registry {
	t.Helper()

	reg, err := persistence.NewRegistry(persistence.RegistryFile{
		DefaultLanguage: defaultLanguage,
		Languages:       languages,
		Groups:          groups,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return reg
}

// SlugGroup returns a slug-mode group.
func SlugGroup(slug string) domain.Group {
	return domain.Group{Name: slug, Slug: slug, Mode: domain.ModeSlug}
}

// TimestampGroup returns a timestamp-mode group.
func TimestampGroup(slug string) domain.Group {
	return domain.Group{Name: slug, Slug: slug, Mode: domain.ModeTimestamp}
}

// Filesystem returns a FileSystemStorage rooted in a temp dir.
func Filesystem(t testing.TB, reg *persistence.Registry) *persistence.FileSystemStorage {
	t.Helper()
	return persistence.NewFileSystemStorage(t.TempDir(), reg, reg)
}

// File describes one language file to write.
type File struct {
	Group    string
	ID       domain.Identifier
	Language string
	Version  int
	Status   domain.Status
	Meta     domain.Metadata
	Body     string
}

// Write stores every file through w.
func Write(t testing.TB, w domain.Writer, files ...File) {
	t.Helper()

	for _, f := range files {
		meta := f.Meta
		if f.Status != "" {
			meta.Status = f.Status
		}
		if meta.Title == "" {
			meta.Title = f.ID.Path() + " " + f.Language
		}
		meta.Version = f.Version

		body := f.Body
		if body == "" {
			body = "Content of " + f.ID.Path() + " in " + f.Language + ".\n"
		}

		post := &domain.Post{
			Group:      f.Group,
			Identifier: f.ID,
			Language:   f.Language,
			Version:    f.Version,
			Metadata:   meta,
			Content:    body,
		}
		if err := w.Write(context.Background(), post); err != nil {
			t.Fatalf("failed to write %s/%s %s v%d: %v", f.Group, f.ID.Path(), f.Language, f.Version, err)
		}
	}
}

// Slug is shorthand for a slug identifier.
func Slug(s string) domain.Identifier { return domain.SlugIdentifier{Slug: s} }

// Stamp is shorthand for a timestamp identifier.
func Stamp(date, clock string) domain.Identifier {
	return domain.TimestampIdentifier{Date: date, Time: clock}
}
