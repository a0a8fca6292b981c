package resolution

import (
	"context"
	"errors"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/language"
	"github.com/rs/zerolog/log"
)

// Kind tells the caller what to do with a Result.
type Kind int

const (
	KindPost Kind = iota
	KindListing
	KindRedirect
)

// Request is a routed page request: the URL language code and the segments
// after it.
type Request struct {
	Language string
	Segments []string
}

// Path is the request URL.
func (r Request) Path() string {
	return join(append([]string{r.Language}, r.Segments...)...)
}

// Result is a successful resolution.
type Result struct {
	Kind  Kind
	Group *domain.Group
	Post  *domain.Post
	// Date narrows a timestamp group listing to one day.
	Date string
	// Language is the file language the page is rendered in.
	Language string

	Location  string
	Permanent bool
}

func redirect(location string, permanent bool) *Result {
	return &Result{Kind: KindRedirect, Location: location, Permanent: permanent}
}

// Resolve turns a request into a page, a redirect or a not-found error from
// the domain.IsNotFound family. A URL language code or slug that is not the
// canonical one for the content always redirects.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	urls := r.urls
	shape := domain.ParsePath(req.Segments)
	if shape.GroupSlug() == "" {
		return nil, domain.ErrGroupNotFound
	}
	group, err := r.groups.GetGroup(ctx, shape.GroupSlug())
	if err != nil {
		return nil, err
	}

	fileLang := urls.FileLanguage(req.Language)

	if d, ok := shape.(domain.DatePath); ok && group.Mode == domain.ModeSlug {
		shape = domain.SlugPath{Group: d.Group, Slug: d.Date}
	}

	switch shape := shape.(type) {
	case domain.ListingPath:
		return r.listingResult(req, group, fileLang, "")

	case domain.DatePath:
		return r.listingResult(req, group, fileLang, shape.Date)

	case domain.SlugPath:
		if group.Mode != domain.ModeSlug {
			return nil, domain.ErrPostNotFound
		}
		slug, moved, err := r.mapURLSlug(ctx, group.Slug, fileLang, shape.Slug)
		if err != nil || moved != nil {
			return moved, err
		}
		post, err := r.fetchSlug(ctx, group.Slug, domain.SlugIdentifier{Slug: slug}, fileLang)
		if err != nil {
			return nil, err
		}
		return r.postResult(req, group, post, urls.PostURL(post))

	case domain.VersionedSlugPath:
		if group.Mode != domain.ModeSlug {
			return nil, domain.ErrPostNotFound
		}
		slug, moved, err := r.mapURLSlug(ctx, group.Slug, fileLang, shape.Slug)
		if err != nil {
			return nil, err
		}
		if moved != nil {
			moved.Location = join(moved.Location, "v", req.Segments[3])
			return moved, nil
		}
		post, err := r.FetchVersion(ctx, group.Slug, domain.SlugIdentifier{Slug: slug}, fileLang, shape.Version)
		if err != nil {
			return nil, err
		}
		return r.postResult(req, group, post, urls.VersionURL(post, shape.Version))

	case domain.TimestampPath:
		if group.Mode != domain.ModeTimestamp {
			return nil, domain.ErrPostNotFound
		}
		id := domain.TimestampIdentifier{Date: shape.Date, Time: shape.Time}
		post, err := r.fetchTimestamp(ctx, group.Slug, id, fileLang)
		if err != nil {
			return nil, err
		}
		return r.postResult(req, group, post, urls.PostURL(post))

	default:
		return nil, domain.ErrPostNotFound
	}
}

func (r *Resolver) postResult(req Request, group *domain.Group, post *domain.Post, canonical string) (*Result, error) {
	if canonical != req.Path() {
		return redirect(canonical, false), nil
	}
	return &Result{Kind: KindPost, Group: group, Post: post, Language: post.Language}, nil
}

func (r *Resolver) listingResult(req Request, group *domain.Group, fileLang, date string) (*Result, error) {
	if _, ok := language.Resolve(req.Language, r.languages.EnabledLanguages()); !ok {
		fileLang = r.languages.DefaultLanguage()
	}
	canonical := r.urls.ListingURL(fileLang, group.Slug)
	if date != "" {
		canonical = join(canonical, date)
	}
	if canonical != req.Path() {
		return redirect(canonical, false), nil
	}
	return &Result{Kind: KindListing, Group: group, Date: date, Language: fileLang}, nil
}

// mapURLSlug turns a URL slug segment into a directory slug. A retired slug
// yields a permanent redirect to the current one. Without a usable cache the
// segment is taken as the directory slug.
func (r *Resolver) mapURLSlug(ctx context.Context, group, fileLang, segment string) (string, *Result, error) {
	if r.index == nil {
		return segment, nil, nil
	}

	s, err := r.index.FindByURLSlug(ctx, group, fileLang, segment)
	switch {
	case err == nil:
		return s.Slug, nil, nil
	case errors.Is(err, domain.ErrCacheMiss):
		return segment, nil, nil
	case !errors.Is(err, domain.ErrPostNotFound):
		log.Warn().Err(err).Str("group", group).Str("url_slug", segment).Msg("URL slug lookup failed")
		return segment, nil, nil
	}

	if s, err := r.index.FindByPreviousURLSlug(ctx, group, fileLang, segment); err == nil {
		return "", redirect(r.urls.SummaryURL(s, fileLang), true), nil
	}

	// A slug from another language moves to this language's slug.
	for _, other := range r.languages.EnabledLanguages() {
		if other == fileLang {
			continue
		}
		if s, err := r.index.FindByURLSlug(ctx, group, other, segment); err == nil {
			return "", redirect(r.urls.SummaryURL(s, fileLang), false), nil
		}
	}
	return segment, nil, nil
}
