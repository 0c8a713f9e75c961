package api

import (
	"log/slog"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/ws"
)

// multipartOverhead covers boundaries and form fields on top of the file itself.
const multipartOverhead = 1 << 20

type Dependencies struct {
	DB        handler.Pinger
	Registrar handler.MediaRegistrar
	Media     handler.MediaReader
	Faces     handler.FaceLister
	Jobs      handler.JobReader
	Batches   handler.BatchScheduler
	Searcher  handler.Searcher
	Stats     handler.StatsReader
	Cache     handler.CacheStatsReader
	Hub       *ws.Hub

	// Metrics and Gatherer are optional; without them /metrics is not mounted.
	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer

	// Limiter throttles the endpoints that run detection inline. Optional.
	Limiter *middleware.RateLimiter

	MaxUploadSize int64
	ChunkSize     int
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	cfg := fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "facetrail",
	}
	if deps != nil && deps.MaxUploadSize > 0 {
		cfg.BodyLimit = int(deps.MaxUploadSize) + multipartOverhead
	}

	return &Router{
		app:    fiber.New(cfg),
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	if r.deps != nil && r.deps.Metrics != nil {
		r.app.Use(r.deps.Metrics.Middleware())
	}
	r.app.Use(middleware.Logger(r.logger, "/health", "/ready", "/metrics"))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var db handler.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	if r.deps.Gatherer != nil {
		r.app.Get("/metrics", metrics.Handler(r.deps.Gatherer))
	}

	v1 := r.app.Group("/v1")

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if r.deps.Limiter != nil {
		limit = r.deps.Limiter.Handler()
	}

	mediaHandler := handler.NewMediaHandler(r.deps.Registrar, r.deps.Media, r.deps.Faces, r.deps.MaxUploadSize, r.logger)
	v1.Post("/media", limit, mediaHandler.Upload)
	v1.Get("/media", mediaHandler.List)
	v1.Get("/media/:id", mediaHandler.Get)
	v1.Get("/media/:id/faces", mediaHandler.Faces)

	jobHandler := handler.NewJobHandler(r.deps.Jobs, r.logger)
	v1.Get("/jobs/:id", jobHandler.Get)
	if r.deps.Hub != nil {
		v1.Get("/jobs/:id/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}

	batchHandler := handler.NewBatchHandler(r.deps.Batches, r.deps.ChunkSize, r.logger)
	v1.Post("/batches", batchHandler.Submit)
	v1.Get("/batches/:id", batchHandler.Status)

	searchHandler := handler.NewSearchHandler(r.deps.Searcher, r.deps.MaxUploadSize, r.logger)
	v1.Post("/search", limit, searchHandler.Search)
	v1.Delete("/cache/search", searchHandler.ClearCache)

	statsHandler := handler.NewStatsHandler(r.deps.Stats, r.deps.Cache, r.logger)
	v1.Get("/stats", statsHandler.Get)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
// The websocket hub and workers are owned by the caller.
func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
