package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with all required vars",
			envVars: map[string]string{
				"PORT":          "8080",
				"ENV":           "production",
				"DATABASE_URL":  "postgres://localhost/test",
				"CACHE_BACKEND": "redis",
				"REDIS_ADDRS":   "redis-a:6379,redis-b:6379",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.DatabaseURL == "postgres://localhost/test" &&
					c.CacheBackend == "redis" &&
					len(c.RedisAddrs) == 2
			},
		},
		{
			name: "uses defaults when optional vars missing",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 3000 &&
					c.Environment == "development" &&
					c.ProviderType == "deepface" &&
					c.CacheBackend == "postgres" &&
					c.SearchCacheTTL == time.Hour &&
					c.JobSoftTimeout == 25*time.Minute &&
					c.JobHardTimeout == 30*time.Minute &&
					c.BatchChunkSize == 10 &&
					c.VideoFrameInterval == 30 &&
					c.WatchStabilityWindow == 2*time.Second &&
					c.RateLimit == 120
			},
		},
		{
			name:    "fails when DATABASE_URL missing",
			envVars: map[string]string{},
			wantErr: true,
			check:   nil,
		},
		{
			name: "fails when soft timeout is not below hard timeout",
			envVars: map[string]string{
				"DATABASE_URL":     "postgres://localhost/test",
				"JOB_SOFT_TIMEOUT": "30m",
				"JOB_HARD_TIMEOUT": "30m",
			},
			wantErr: true,
			check:   nil,
		},
		{
			name: "fails on unknown cache backend",
			envVars: map[string]string{
				"DATABASE_URL":  "postgres://localhost/test",
				"CACHE_BACKEND": "memcached",
			},
			wantErr: true,
			check:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}
