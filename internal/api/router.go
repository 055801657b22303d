package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	apihandler "github.com/newgene/biohub/internal/api/handler"
	apimw "github.com/newgene/biohub/internal/api/middleware"
	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/queue"
)

// RouterDeps holds the dependencies of the API surface.
type RouterDeps struct {
	Pool     *pgxpool.Pool
	Backend  build.Backend
	Producer *queue.Producer
	Envs     *config.Environments
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(deps.Pool)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		builds := apihandler.NewBuildHandler(logger, deps.Backend)
		r.Route("/builds", func(r chi.Router) {
			r.Get("/", builds.List)
			r.Get("/{buildID}", builds.Get)
		})

		commands := apihandler.NewCommandHandler(logger, deps.Backend, deps.Producer, deps.Envs)
		r.Post("/index", commands.Index)
		r.Post("/snapshot", commands.Snapshot)
		r.Post("/snapshot-build", commands.SnapshotBuild)

		envs := apihandler.NewEnvHandler(logger, deps.Envs)
		r.Get("/environments", envs.List)
	})

	return r
}
