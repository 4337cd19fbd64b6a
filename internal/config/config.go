package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables the quota guard
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	OpenAIKey     string        `yaml:"openai_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	GeminiKey     string        `yaml:"gemini_key"`
	GeminiBaseURL string        `yaml:"gemini_base_url"`
	DefaultModel  string        `yaml:"default_model"`
	Timeout       time.Duration `yaml:"timeout"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"` // search-augmented calls get longer
}

type WorkerConfig struct {
	MaxJobsPerRun       int           `yaml:"max_jobs_per_run"`
	TimeBudget          time.Duration `yaml:"time_budget"`
	Interval            time.Duration `yaml:"interval"` // 0 disables the built-in trigger loop
	LockStale           time.Duration `yaml:"lock_stale"`
	GenerationRetries   int           `yaml:"generation_retries"` // total generation attempts
	DeliveryRetries     int           `yaml:"delivery_retries"`   // total delivery attempts
	RetryBackoffBase    time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax     time.Duration `yaml:"retry_backoff_max"`
	FailDisableAfter    int           `yaml:"fail_disable_after"`
	MaxChunksPerMessage int           `yaml:"max_chunks_per_message"`
	DailyRunLimit       int           `yaml:"daily_run_limit"`
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	TriggerSecret string `yaml:"trigger_secret"` // bearer secret for the run-jobs endpoint
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if !dev && cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
		return nil, errors.New("ai.openai_key or ai.gemini_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values so partial configs and tests get the same
// behavior as production.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-5-mini"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.ToolTimeout <= 0 {
		cfg.AI.ToolTimeout = 120 * time.Second
	}
	if cfg.Worker.MaxJobsPerRun <= 0 {
		cfg.Worker.MaxJobsPerRun = 25
	}
	if cfg.Worker.TimeBudget <= 0 {
		cfg.Worker.TimeBudget = 250 * time.Second
	}
	if cfg.Worker.LockStale <= 0 {
		cfg.Worker.LockStale = 10 * time.Minute
	}
	if cfg.Worker.GenerationRetries <= 0 {
		cfg.Worker.GenerationRetries = 2
	}
	if cfg.Worker.DeliveryRetries <= 0 {
		cfg.Worker.DeliveryRetries = 3
	}
	if cfg.Worker.RetryBackoffBase <= 0 {
		cfg.Worker.RetryBackoffBase = 400 * time.Millisecond
	}
	if cfg.Worker.RetryBackoffMax <= 0 {
		cfg.Worker.RetryBackoffMax = 4 * time.Second
	}
	if cfg.Worker.FailDisableAfter <= 0 {
		cfg.Worker.FailDisableAfter = 10
	}
	if cfg.Worker.MaxChunksPerMessage <= 0 {
		cfg.Worker.MaxChunksPerMessage = 10
	}
	if cfg.Worker.DailyRunLimit <= 0 {
		cfg.Worker.DailyRunLimit = 50
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
}
