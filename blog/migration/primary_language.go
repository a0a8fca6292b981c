package migration

import (
	"context"
	"fmt"
	"slices"

	"github.com/dfryer1193/publog/blog/application"
	"github.com/dfryer1193/publog/blog/domain"
)

// PostUpdater is the standard post update path.
type PostUpdater interface {
	UpdatePost(ctx context.Context, u application.PostUpdate) (*domain.Post, error)
}

// PrimaryLanguage sets primary_language on posts where it is absent or
// differs from the target.
type PrimaryLanguage struct {
	storage   domain.Storage
	groups    domain.GroupRepository
	languages domain.LanguageService
	updater   PostUpdater
	// Target overrides the group's primary language.
	Target string
}

var _ Job = (*PrimaryLanguage)(nil)

func NewPrimaryLanguage(storage domain.Storage, groups domain.GroupRepository, languages domain.LanguageService, updater PostUpdater) *PrimaryLanguage {
	return &PrimaryLanguage{storage: storage, groups: groups, languages: languages, updater: updater}
}

func (j *PrimaryLanguage) Name() string { return "primary-language" }

func (j *PrimaryLanguage) target(g *domain.Group) string {
	switch {
	case j.Target != "":
		return j.Target
	case g.PrimaryLanguage != "":
		return g.PrimaryLanguage
	case j.languages != nil && j.languages.DefaultLanguage() != "":
		return j.languages.DefaultLanguage()
	default:
		return domain.DefaultLanguage
	}
}

// Run updates the live version of every post in group through the post
// service, so translations receive the new value too.
func (j *PrimaryLanguage) Run(ctx context.Context, group string, p *Progress) (*Result, error) {
	g, err := j.groups.GetGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	target := j.target(g)

	ids, err := j.storage.ListPosts(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	p.Total(len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		changed, err := j.migrate(ctx, group, id, target)
		switch {
		case err != nil:
			p.Failed(id.Path(), err)
		case changed:
			p.Succeeded(id.Path())
		default:
			p.Skipped(id.Path())
		}
	}
	return p.Result(), ctx.Err()
}

func (j *PrimaryLanguage) migrate(ctx context.Context, group string, id domain.Identifier, target string) (bool, error) {
	versions, err := j.storage.ListVersions(ctx, group, id)
	if err != nil {
		return false, err
	}
	live := domain.LiveVersion(versions)

	languages, err := j.storage.ListLanguages(ctx, group, id, live)
	if err != nil {
		return false, err
	}
	if len(languages) == 0 {
		return false, nil
	}

	stale := false
	for _, lang := range languages {
		post, err := j.storage.Read(ctx, group, id, lang, live)
		if err != nil {
			return false, err
		}
		if post.Metadata.PrimaryLanguage != target {
			stale = true
			break
		}
	}
	if !stale {
		return false, nil
	}

	via := languages[0]
	if slices.Contains(languages, target) {
		via = target
	}
	_, err = j.updater.UpdatePost(ctx, application.PostUpdate{
		Group:           group,
		Identifier:      id,
		Language:        via,
		Version:         live,
		PrimaryLanguage: &target,
	})
	return err == nil, err
}
