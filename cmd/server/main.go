package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/publog/blog/markdown"
	"github.com/dfryer1193/publog/internal/app"
	"github.com/dfryer1193/publog/internal/config"
	"github.com/dfryer1193/publog/internal/middleware"
	"github.com/dfryer1193/publog/internal/rest"
	"github.com/dfryer1193/publog/internal/watch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configFile := flag.String("config", "", "path to publog.yaml")
	flag.Parse()

	loader, err := config.NewLoader(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	a, err := app.New(cfg, loader, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to gracefully close application")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := watch.New(cfg.ContentRoot, a.Cache, watch.DefaultDebounce)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create content watcher")
	}
	if err := watcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to watch content root")
	}
	defer watcher.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(), gin.CustomRecovery(middleware.HandlePanics()))

	api := rest.NewApi(a.Resolver, a.Planner, markdown.NewRenderer(cfg.Server.BaseURL), a.Cache, a.Runner, a.Jobs()...).
		WithBackground(ctx)
	api.Register(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}
