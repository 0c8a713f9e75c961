package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port          int    `envconfig:"PORT" default:"3000"`
	Environment   string `envconfig:"ENV" default:"development"`
	MaxUploadSize int    `envconfig:"MAX_UPLOAD_SIZE" default:"104857600"`
	// RateLimit caps uploads and searches per client IP per minute. Zero disables it.
	RateLimit int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Detection provider
	ProviderType       string   `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL        string   `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel      string   `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceDetector   string   `envconfig:"DEEPFACE_DETECTOR" default:"retinaface"`
	DeepFaceActions    []string `envconfig:"DEEPFACE_ACTIONS"`
	AttributesProvider string   `envconfig:"ATTRIBUTES_PROVIDER" default:"none"`
	AWSRegion          string   `envconfig:"AWS_REGION" default:"us-east-1"`

	// Cache
	CacheBackend   string        `envconfig:"CACHE_BACKEND" default:"postgres"`
	RedisAddrs     []string      `envconfig:"REDIS_ADDRS" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	SearchCacheTTL time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"1h"`

	// Search
	SearchIndex string `envconfig:"SEARCH_INDEX" default:"bruteforce"`

	// Jobs and workers
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	JobSoftTimeout     time.Duration `envconfig:"JOB_SOFT_TIMEOUT" default:"25m"`
	JobHardTimeout     time.Duration `envconfig:"JOB_HARD_TIMEOUT" default:"30m"`
	BatchChunkSize     int           `envconfig:"BATCH_CHUNK_SIZE" default:"10"`

	// Media
	VideoFrameInterval int    `envconfig:"VIDEO_FRAME_INTERVAL" default:"30"`
	UploadDir          string `envconfig:"UPLOAD_DIR" default:"./data/uploads"`
	FacesDir           string `envconfig:"FACES_DIR" default:"./data/processed/faces"`
	SaveFaceCrops      bool   `envconfig:"SAVE_FACE_CROPS" default:"false"`
	FFmpegPath         string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath        string `envconfig:"FFPROBE_PATH" default:"ffprobe"`

	// Watcher
	WatchDir             string        `envconfig:"WATCH_DIR"`
	WatchStabilityWindow time.Duration `envconfig:"WATCH_STABILITY_WINDOW" default:"2s"`
	WatchProcessExisting bool          `envconfig:"WATCH_PROCESS_EXISTING" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JobSoftTimeout >= c.JobHardTimeout {
		return fmt.Errorf("JOB_SOFT_TIMEOUT (%s) must be below JOB_HARD_TIMEOUT (%s)", c.JobSoftTimeout, c.JobHardTimeout)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.BatchChunkSize < 1 {
		return fmt.Errorf("BATCH_CHUNK_SIZE must be at least 1")
	}
	if c.VideoFrameInterval < 1 {
		return fmt.Errorf("VIDEO_FRAME_INTERVAL must be at least 1")
	}
	switch c.CacheBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
