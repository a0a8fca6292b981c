// Package app wires storage, caches and services from a Config.
package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/dfryer1193/publog/blog/application"
	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/fallback"
	"github.com/dfryer1193/publog/blog/listing"
	"github.com/dfryer1193/publog/blog/migration"
	"github.com/dfryer1193/publog/blog/persistence"
	"github.com/dfryer1193/publog/blog/resolution"
	"github.com/dfryer1193/publog/internal/config"
	"github.com/dfryer1193/publog/shared/db"
	"github.com/dfryer1193/publog/shared/db/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config   *config.Config
	Registry *persistence.Registry

	// Files is the filesystem store; Database the SQLite one. Store is
	// whichever storage.backend selects.
	Files    *persistence.FileSystemStorage
	Database *persistence.SQLitePostRepository
	Store    domain.Store

	Cache    *listing.Cache
	Resolver *resolution.Resolver
	Planner  *fallback.Planner
	Posts    *application.PostService
	Runner   *migration.Runner

	Restructure     *migration.Restructure
	PrimaryLanguage *migration.PrimaryLanguage
	FSToDB          *migration.FilesystemToDatabase
	Validate        *migration.Validate

	db    db.Database
	redis *redis.Client
}

// New builds every component. switcher receives the backend switch after a
// clean filesystem to database migration and may be nil.
func New(cfg *config.Config, switcher migration.BackendSwitcher, reg prometheus.Registerer) (*App, error) {
	registry, err := persistence.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ContentRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content root: %w", err)
	}

	a := &App{Config: cfg, Registry: registry}
	a.Files = persistence.NewFileSystemStorage(cfg.ContentRoot, registry, registry)

	a.db = sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: cfg.Database.Path})
	if err := a.db.Connect(); err != nil {
		return nil, err
	}
	a.Database = persistence.NewPostRepository(a.db.DB(), registry, registry)

	a.Store = a.Files
	if cfg.Storage.Backend == config.BackendDatabase {
		a.Store = a.Database
	}

	opts := []listing.Option{listing.WithRegisterer(reg)}
	if cfg.Cache.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid cache.redis_url: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
		opts = append(opts, listing.WithLockTable(listing.NewRedisLockTable(a.redis, 2*cfg.Cache.LockStaleAfter)))
	}
	a.Cache, err = listing.NewCache(cfg.ListingConfig(), a.Store, registry, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Resolver = resolution.NewResolver(a.Store, a.Cache, registry, registry)
	a.Planner = fallback.NewPlanner(a.Resolver, a.Store, registry, registry)
	a.Posts = application.NewPostService(a.Store, a.Cache)

	events := &migration.Broadcaster{}
	events.Subscribe(migration.LogObserver)
	a.Runner = migration.NewRunner(events, cfg.Jobs.Timeout)

	a.Restructure = migration.NewRestructure(a.Cache, a.Store)
	a.PrimaryLanguage = migration.NewPrimaryLanguage(a.Store, registry, registry, a.Posts)
	a.FSToDB = migration.NewFilesystemToDatabase(a.Files, a.Database, registry, switcher)
	a.Validate = migration.NewValidate(a.Files, a.Database, registry)

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Str("content_root", cfg.ContentRoot).
		Bool("redis_locks", a.redis != nil).
		Msg("Application wired")
	return a, nil
}

// Jobs lists the on-demand migration jobs.
func (a *App) Jobs() []migration.Job {
	return []migration.Job{a.Restructure, a.PrimaryLanguage, a.FSToDB, a.Validate}
}

// Close waits for scheduled cache work and releases connections.
func (a *App) Close() error {
	var errs []error
	if a.Posts != nil {
		errs = append(errs, a.Posts.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
