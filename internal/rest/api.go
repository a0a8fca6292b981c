package rest

import (
	"context"
	"net/http"

	"github.com/dfryer1193/publog/blog/fallback"
	"github.com/dfryer1193/publog/blog/markdown"
	"github.com/dfryer1193/publog/blog/migration"
	"github.com/dfryer1193/publog/blog/resolution"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ListingRegenerator rebuilds a group's listing cache unless another caller
// already is.
type ListingRegenerator interface {
	RegenerateIfNotInProgress(ctx context.Context, group string) error
}

// Api serves pages, listings and admin job triggers.
type Api struct {
	resolver *resolution.Resolver
	planner  *fallback.Planner
	renderer markdown.Renderer
	cache    ListingRegenerator
	runner   *migration.Runner
	jobs     map[string]migration.Job
	// background is the context regenerations triggered by cold listings run in.
	background context.Context
}

func NewApi(resolver *resolution.Resolver, planner *fallback.Planner, renderer markdown.Renderer, cache ListingRegenerator, runner *migration.Runner, jobs ...migration.Job) *Api {
	byName := make(map[string]migration.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	return &Api{
		resolver:   resolver,
		planner:    planner,
		renderer:   renderer,
		cache:      cache,
		runner:     runner,
		jobs:       byName,
		background: context.Background(),
	}
}

// WithBackground sets the context background regenerations run in.
func (a *Api) WithBackground(ctx context.Context) *Api {
	a.background = ctx
	return a
}

// Register mounts the routes. Every path not claimed by another route is a
// page: /{lang}/{group}/...
func (a *Api) Register(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("admin")
	{
		admin.POST("/jobs/:job", a.RunJob)
	}

	router.NoRoute(a.Page)
}
