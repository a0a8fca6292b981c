package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dfryer1193/publog/api"
	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/fallback"
	"github.com/dfryer1193/publog/blog/resolution"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const noticeParam = "notice"

// splitPath turns /{lang}/{group}/... into a resolution request.
func splitPath(path string) resolution.Request {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return resolution.Request{}
	}
	return resolution.Request{Language: parts[0], Segments: parts[1:]}
}

func (a *Api) Page(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	ctx := c.Request.Context()
	req := splitPath(c.Request.URL.Path)
	notice := c.Query(noticeParam)

	res, err := a.resolver.Resolve(ctx, req)
	if err != nil {
		a.fallback(c, req, err)
		return
	}

	switch res.Kind {
	case resolution.KindRedirect:
		status := http.StatusFound
		if res.Permanent {
			status = http.StatusMovedPermanently
		}
		c.Redirect(status, withNotice(res.Location, notice))
	case resolution.KindListing:
		a.listing(c, res, notice)
	default:
		a.post(c, res.Post, notice)
	}
}

// fallback redirects to the planner's closest match with a notice, or
// answers a plain 404.
func (a *Api) fallback(c *gin.Context, req resolution.Request, reason error) {
	if !domain.IsNotFound(reason) {
		log.Error().Err(reason).Str("path", c.Request.URL.Path).Msg("Failed to resolve page")
		c.Status(http.StatusInternalServerError)
		return
	}

	plan, err := a.planner.Plan(c.Request.Context(), domain.ParsePath(req.Segments), req.Language, reason)
	if err != nil {
		if !errors.Is(err, fallback.ErrNoFallback) {
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Failed to plan fallback")
		}
		c.String(http.StatusNotFound, "404 page not found")
		return
	}
	c.Redirect(http.StatusFound, withNotice(plan.Location, api.NoticeNotFound))
}

func withNotice(location, notice string) string {
	if notice == "" {
		return location
	}
	return location + "?" + url.Values{noticeParam: {notice}}.Encode()
}

func (a *Api) post(c *gin.Context, post *domain.Post, notice string) {
	section := a.resolver.URLs().ListingURL(post.Language, post.Group)
	html, err := a.renderer.Render([]byte(post.Content), section)
	if err != nil {
		log.Error().Err(err).Str("path", post.Path).Msg("Failed to render post")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, api.Post{
		Group:              post.Group,
		Path:               post.Identifier.Path(),
		Title:              post.Metadata.Title,
		Description:        post.Metadata.Description,
		Language:           post.Language,
		Version:            post.Version,
		AvailableLanguages: post.AvailableLanguages,
		AvailableVersions:  post.AvailableVersions,
		PublishedAt:        post.Metadata.PublishedAt,
		HTML:               string(html),
		Notice:             notice,
	})
}

func (a *Api) listing(c *gin.Context, res *resolution.Result, notice string) {
	entries, cold, err := a.resolver.Listing(c.Request.Context(), res.Group.Slug, res.Language, res.Date)
	if cold && a.cache != nil {
		a.warm(res.Group.Slug)
	}
	if err != nil {
		log.Error().Err(err).Str("group", res.Group.Slug).Msg("Failed to list posts")
		c.Status(http.StatusInternalServerError)
		return
	}

	out := api.Listing{
		Group:    res.Group.Slug,
		Date:     res.Date,
		Language: res.Language,
		Posts:    make([]api.ListingEntry, 0, len(entries)),
		Notice:   notice,
	}
	for _, e := range entries {
		out.Posts = append(out.Posts, api.ListingEntry{
			Title:       e.Summary.Title,
			Excerpt:     e.Summary.Excerpt,
			Language:    e.Language,
			URL:         e.URL,
			PublishedAt: e.Summary.PublishedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// warm regenerates a cold group's cache off the request path.
func (a *Api) warm(group string) {
	go func(ctx context.Context) {
		err := a.cache.RegenerateIfNotInProgress(ctx, group)
		switch {
		case errors.Is(err, domain.ErrAlreadyInProgress):
			log.Debug().Str("group", group).Msg("Listing regeneration already in progress")
		case err != nil:
			log.Error().Err(err).Str("group", group).Msg("Failed to warm listing cache")
		}
	}(a.background)
}
