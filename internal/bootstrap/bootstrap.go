// Package bootstrap assembles the ingestion and search services from configuration.
// Both the HTTP server and the CLI build on it so they share one wiring.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/audit"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/cache"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/config"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/database"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/face"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/media"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/provider"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/repository"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/scheduler"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/search"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/watcher"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/worker"
)

const statsInterval = 30 * time.Second

type Options struct {
	// Registry enables Prometheus collectors when set.
	Registry *prometheus.Registry
	// Migrate applies pending schema migrations before anything else.
	Migrate bool
	// Detector overrides the configured detection provider.
	Detector provider.Detector
	// Pool reuses an existing connection pool instead of opening DATABASE_URL.
	Pool *pgxpool.Pool
	// LocalQueue keeps jobs in process memory. Media and faces are still
	// persisted, but no other worker can claim the jobs.
	LocalQueue bool
}

// JobStore is the queue backend: Postgres for shared workers, memory for one-shot runs.
type JobStore interface {
	job.Store
	job.StaleLister
	scheduler.JobLister
}

// Services holds every long-lived component. Close releases what New opened.
type Services struct {
	Config *config.Config
	DB     *pgxpool.Pool

	Media    *repository.MediaRepository
	Faces    *repository.FaceRepository
	JobStore JobStore
	Stats    *repository.StatsRepository

	Cache     *cache.Cache
	Jobs      *job.Manager
	Processor *media.Processor
	Ingestor  *service.Ingestor
	Registrar *service.Registrar
	Scheduler *scheduler.Scheduler
	Workers   *worker.Pool
	Search    *search.Engine
	Metrics   *metrics.Recorder

	logger  *slog.Logger
	pgCache *cache.PGCache
	redis   *cache.RedisCache
	hnsw    *search.HNSWIndex
	ownsDB  bool
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Services, error) {
	s := &Services{Config: cfg, logger: logger, DB: opts.Pool}

	if s.DB == nil {
		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL, cfg.WorkerConcurrency))
		if err != nil {
			return nil, err
		}
		s.DB = pool
		s.ownsDB = true
	}

	if opts.Migrate {
		if err := database.MigrateUp(database.SQLDB(s.DB), s.DB.Config().ConnConfig.Database, logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if opts.Registry != nil {
		s.Metrics = metrics.New(opts.Registry)
	}

	s.Media = repository.NewMediaRepository(s.DB)
	s.Faces = repository.NewFaceRepository(s.DB)
	if opts.LocalQueue {
		s.JobStore = job.NewMemoryStore()
	} else {
		s.JobStore = repository.NewJobRepository(s.DB)
	}
	s.Stats = repository.NewStatsRepository(s.DB)

	backend, err := s.cacheBackend(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Cache = cache.New(backend, logger)

	detector := opts.Detector
	if detector == nil {
		detector, err = face.NewDetector(ctx, cfg, logger, audit.NewSlogLogger(logger))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create detector: %w", err)
		}
	}

	procOpts := []media.Option{media.WithFrameInterval(cfg.VideoFrameInterval)}
	if cfg.SaveFaceCrops {
		procOpts = append(procOpts, media.WithCrops(media.NewCropWriter(cfg.FacesDir)))
	}
	s.Processor = media.NewProcessor(detector, media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath), logger, procOpts...)

	jobOpts := []job.Option{job.WithTimeouts(cfg.JobSoftTimeout, cfg.JobHardTimeout)}
	if s.Metrics != nil {
		jobOpts = append(jobOpts, job.WithObserver(s.Metrics))
	}
	s.Jobs = job.NewManager(s.JobStore, logger, jobOpts...)

	s.Ingestor = service.NewIngestor(s.Media, s.Faces, s.Processor, logger)
	if s.Metrics != nil {
		s.Ingestor.WithObserver(s.Metrics)
	}

	chunks := scheduler.NewChunkRunner(s.Ingestor, s.Media, logger)
	s.Workers = worker.NewPool(s.Jobs, worker.NewKindDispatcher(s.Ingestor, chunks), worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	}, logger)

	s.Registrar = service.NewRegistrar(s.Media, s.Jobs, s.Workers, cfg.UploadDir, logger)
	s.Scheduler = scheduler.NewScheduler(s.Jobs, s.JobStore, s.Workers, logger)

	s.Search = search.NewEngine(s.Processor, s.searchIndex(ctx), s.Cache, logger, s.searchOptions()...)

	return s, nil
}

func (s *Services) cacheBackend(ctx context.Context) (cache.Backend, error) {
	switch s.Config.CacheBackend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addrs:    s.Config.RedisAddrs,
			Password: s.Config.RedisPassword,
			DB:       s.Config.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			// The cache is best-effort; a dead Redis only costs recomputation.
			s.logger.Warn("redis unreachable at startup", slog.String("error", err.Error()))
		}
		s.redis = rc
		return rc, nil
	default:
		s.pgCache = cache.NewPGCache(s.DB)
		return s.pgCache, nil
	}
}

func (s *Services) searchIndex(ctx context.Context) search.Index {
	if s.Config.SearchIndex != search.IndexHNSW {
		return search.NewBruteForce(s.Faces)
	}

	s.hnsw = search.NewHNSWIndex(s.Faces)
	if err := s.hnsw.Sync(ctx); err != nil {
		// Candidates syncs again on the first query.
		s.logger.Warn("initial hnsw sync failed", slog.String("error", err.Error()))
	} else {
		s.logger.Info("hnsw index loaded", slog.Int("faces", s.hnsw.Len()))
	}
	return s.hnsw
}

func (s *Services) searchOptions() []search.Option {
	opts := []search.Option{
		search.WithCacheTTL(s.Config.SearchCacheTTL),
		search.WithLogStore(repository.NewSearchLogRepository(s.DB)),
	}
	if s.Metrics != nil {
		opts = append(opts, search.WithObserver(s.Metrics))
	}
	return opts
}

// NewWatcher builds a folder watcher that registers files through the shared registrar.
func (s *Services) NewWatcher(dir string) *watcher.Watcher {
	w := watcher.New(watcher.Config{
		Dir:             dir,
		StabilityWindow: s.Config.WatchStabilityWindow,
		ProcessExisting: s.Config.WatchProcessExisting,
	}, s.Registrar, s.Media, s.logger)
	if s.Metrics != nil {
		w.WithObserver(s.Metrics)
	}
	return w
}

// RunMaintenance runs the job reaper, the cache janitor and the metrics
// aggregator until ctx ends.
func (s *Services) RunMaintenance(ctx context.Context) {
	go job.NewReaper(s.Jobs, s.JobStore, s.logger, job.DefaultReaperInterval).Run(ctx)

	if s.pgCache != nil {
		go cache.NewJanitor(s.pgCache, s.logger, cache.DefaultJanitorInterval).Run(ctx)
	}
	if s.Metrics != nil {
		agg := metrics.NewAggregator(s.Stats, s.Metrics, s.logger.With("component", "metrics_aggregator"), statsInterval)
		go agg.Start(ctx)
	}
}

func (s *Services) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.ownsDB && s.DB != nil {
		s.DB.Close()
	}
}
