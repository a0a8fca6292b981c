package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/rs/zerolog/log"
)

// BackendDatabase is the storage backend name switched to after a clean
// filesystem to database run.
const BackendDatabase = "database"

// DatabaseTarget upserts rows keyed by natural keys: group slug, group and
// post slug, post and version number, version and language.
type DatabaseTarget interface {
	UpsertGroup(ctx context.Context, g *domain.Group) (int64, error)
	UpsertPost(ctx context.Context, groupID int64, id domain.Identifier, primaryLanguage string) (int64, error)
	UpsertVersion(ctx context.Context, postID int64, number int) (int64, error)
	UpsertContent(ctx context.Context, versionID int64, language string, meta domain.Metadata, body string) error
}

// BackendSwitcher changes the configured storage backend.
type BackendSwitcher interface {
	SwitchBackend(ctx context.Context, backend string) error
}

// FilesystemToDatabase copies every language file of every version into the
// database. Re-running it never creates duplicates.
type FilesystemToDatabase struct {
	source   domain.Storage
	target   DatabaseTarget
	groups   domain.GroupRepository
	switcher BackendSwitcher
}

var _ Job = (*FilesystemToDatabase)(nil)

// NewFilesystemToDatabase returns the job. switcher may be nil to never
// switch backends.
func NewFilesystemToDatabase(source domain.Storage, target DatabaseTarget, groups domain.GroupRepository, switcher BackendSwitcher) *FilesystemToDatabase {
	return &FilesystemToDatabase{source: source, target: target, groups: groups, switcher: switcher}
}

func (j *FilesystemToDatabase) Name() string { return "fs-to-db" }

func (j *FilesystemToDatabase) Run(ctx context.Context, group string, p *Progress) (*Result, error) {
	g, err := j.groups.GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	groupID, err := j.target.UpsertGroup(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert group: %w", err)
	}

	ids, err := j.source.ListPosts(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	p.Total(len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := j.migratePost(ctx, groupID, group, id); err != nil {
			p.Failed(id.Path(), err)
			continue
		}
		p.Succeeded(id.Path())
	}
	return p.Result(), ctx.Err()
}

// migratePost keeps going past failed versions and languages and returns
// all of their errors joined.
func (j *FilesystemToDatabase) migratePost(ctx context.Context, groupID int64, group string, id domain.Identifier) error {
	versions, err := j.source.ListVersions(ctx, group, id)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		versions = []int{domain.LegacyVersion}
	}

	primary, err := j.explicitPrimaryLanguage(ctx, group, id, domain.LiveVersion(versions))
	if err != nil {
		return err
	}
	postID, err := j.target.UpsertPost(ctx, groupID, id, primary)
	if err != nil {
		return err
	}

	var errs []error
	for _, v := range versions {
		// The database has no legacy layout; legacy files become v1.
		number := v
		if number == domain.LegacyVersion {
			number = 1
		}
		versionID, err := j.target.UpsertVersion(ctx, postID, number)
		if err != nil {
			errs = append(errs, fmt.Errorf("v%d: %w", v, err))
			continue
		}

		languages, err := j.source.ListLanguages(ctx, group, id, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("v%d: %w", v, err))
			continue
		}
		for _, lang := range languages {
			if err := j.migrateContent(ctx, versionID, group, id, lang, v); err != nil {
				log.Warn().Err(err).Str("group", group).Str("post", id.Path()).Int("version", v).Str("language", lang).Msg("Failed to migrate language file")
				errs = append(errs, fmt.Errorf("v%d %s: %w", v, lang, err))
			}
		}
	}
	return errors.Join(errs...)
}

// explicitPrimaryLanguage returns the primary_language set in the live
// version's files, or "" when the post inherits the group or site default.
func (j *FilesystemToDatabase) explicitPrimaryLanguage(ctx context.Context, group string, id domain.Identifier, live int) (string, error) {
	languages, err := j.source.ListLanguages(ctx, group, id, live)
	if err != nil {
		return "", err
	}
	for _, lang := range languages {
		post, err := j.source.Read(ctx, group, id, lang, live)
		if err != nil {
			continue
		}
		if post.Metadata.PrimaryLanguage != "" {
			return post.Metadata.PrimaryLanguage, nil
		}
	}
	return "", nil
}

func (j *FilesystemToDatabase) migrateContent(ctx context.Context, versionID int64, group string, id domain.Identifier, lang string, version int) error {
	post, err := j.source.Read(ctx, group, id, lang, version)
	if err != nil {
		return err
	}
	return j.target.UpsertContent(ctx, versionID, lang, post.Metadata, post.Content)
}

// RunAll migrates every group and switches the backend to the database
// only when no item failed anywhere in the run.
func (j *FilesystemToDatabase) RunAll(ctx context.Context, runner *Runner) ([]*Result, error) {
	groups, err := j.groups.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	var results []*Result
	clean := true
	for _, g := range groups {
		res, err := runner.Run(ctx, j, g.Slug)
		if res != nil {
			results = append(results, res)
			clean = clean && res.Failed() == 0
		}
		if err != nil {
			clean = false
			log.Error().Err(err).Str("group", g.Slug).Msg("Filesystem to database migration failed")
		}
	}

	if !clean {
		log.Warn().Msg("Migration recorded errors; keeping the current storage backend")
		return results, nil
	}
	if j.switcher != nil {
		if err := j.switcher.SwitchBackend(ctx, BackendDatabase); err != nil {
			return results, fmt.Errorf("failed to switch storage backend: %w", err)
		}
		log.Info().Msg("Switched storage backend to database")
	}
	return results, nil
}
