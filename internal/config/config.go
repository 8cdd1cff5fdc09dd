// Package config loads service settings from defaults, an optional config
// file and environment variables, in that order of precedence.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Auth
	APIKey             string
	WebhookVerifyToken string

	// Reasoning backend
	ReasoningProvider  string
	AnthropicAPIKey    string
	AnthropicModel     string
	MistralAPIKey      string
	MistralModel       string
	ReasoningRPM       int
	ReasoningMaxTokens int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Pipeline
	StagesFile          string
	StageTimeout        time.Duration
	StageRetries        int
	MaxConcurrentStages int
	ChunkSize           int
	ChunkOverlap        int
	DedupPrepass        bool

	// Delivery
	SegmentLimit int

	// Archive; empty disables it.
	ArchivePath string

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	LogLevel string
}

// SetDefaults registers every key with its default. Keys are the lower-case
// form of their environment variable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")

	v.SetDefault("contractlens_api_key", "")
	v.SetDefault("webhook_verify_token", "")

	v.SetDefault("reasoning_provider", "auto")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("mistral_api_key", "")
	v.SetDefault("mistral_model", "mistral-large-latest")
	v.SetDefault("reasoning_rpm", 50)
	v.SetDefault("reasoning_max_tokens", 4096)

	v.SetDefault("worker_count", 4)
	v.SetDefault("max_queue_size", 100)

	v.SetDefault("max_upload_bytes", 52428800) // 50MB

	v.SetDefault("stages_file", "")
	v.SetDefault("stage_timeout", "3m")
	v.SetDefault("stage_retries", 0)
	v.SetDefault("max_concurrent_stages", 0)
	v.SetDefault("chunk_size", 2000)
	v.SetDefault("chunk_overlap", 0)
	v.SetDefault("dedup_prepass", true)

	v.SetDefault("segment_limit", 4000)

	v.SetDefault("archive_path", "contractlens.db")

	v.SetDefault("job_ttl", "1h")

	v.SetDefault("pdf_fallback_pdftotext", true)

	v.SetDefault("log_level", "info")
}

// Load reads configuration. configFile may be empty; when set, its type is
// taken from the extension (toml, yaml, json).
func Load(configFile string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", configFile)
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from an initialized viper instance and repairs
// non-positive sizes with their defaults.
func FromViper(v *viper.Viper) Config {
	cfg := Config{
		Port: v.GetString("port"),

		APIKey:             v.GetString("contractlens_api_key"),
		WebhookVerifyToken: v.GetString("webhook_verify_token"),

		ReasoningProvider:  strings.ToLower(v.GetString("reasoning_provider")),
		AnthropicAPIKey:    v.GetString("anthropic_api_key"),
		AnthropicModel:     v.GetString("anthropic_model"),
		MistralAPIKey:      v.GetString("mistral_api_key"),
		MistralModel:       v.GetString("mistral_model"),
		ReasoningRPM:       v.GetInt("reasoning_rpm"),
		ReasoningMaxTokens: v.GetInt("reasoning_max_tokens"),

		WorkerCount:  v.GetInt("worker_count"),
		MaxQueueSize: v.GetInt("max_queue_size"),

		MaxUploadBytes: v.GetInt64("max_upload_bytes"),

		StagesFile:          v.GetString("stages_file"),
		StageTimeout:        v.GetDuration("stage_timeout"),
		StageRetries:        v.GetInt("stage_retries"),
		MaxConcurrentStages: v.GetInt("max_concurrent_stages"),
		ChunkSize:           v.GetInt("chunk_size"),
		ChunkOverlap:        v.GetInt("chunk_overlap"),
		DedupPrepass:        v.GetBool("dedup_prepass"),

		SegmentLimit: v.GetInt("segment_limit"),

		ArchivePath: v.GetString("archive_path"),

		JobTTL: v.GetDuration("job_ttl"),

		PDFFallbackPdftotext: v.GetBool("pdf_fallback_pdftotext"),

		LogLevel: v.GetString("log_level"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 3 * time.Minute
	}
	if cfg.SegmentLimit <= 0 {
		cfg.SegmentLimit = 4000
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// Validate checks the settings needed to analyze a contract.
func (c Config) Validate() error {
	switch c.ReasoningProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required")
		}
	case "mistral":
		if c.MistralAPIKey == "" {
			return errors.New("MISTRAL_API_KEY is required")
		}
	case "", "auto":
		if c.AnthropicAPIKey == "" && c.MistralAPIKey == "" {
			return errors.WithHint(
				errors.New("no reasoning backend configured"),
				"set ANTHROPIC_API_KEY or MISTRAL_API_KEY")
		}
	default:
		return errors.WithHint(
			errors.Newf("unknown REASONING_PROVIDER %q", c.ReasoningProvider),
			"use anthropic, mistral or auto")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return errors.Newf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.StageRetries < 0 {
		return errors.Newf("STAGE_RETRIES must not be negative, got %d", c.StageRetries)
	}
	if c.MaxConcurrentStages < 0 {
		return errors.Newf("MAX_CONCURRENT_STAGES must not be negative, got %d", c.MaxConcurrentStages)
	}
	return nil
}

// ValidateServer adds the checks for running the HTTP service.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return errors.New("CONTRACTLENS_API_KEY is required")
	}
	if c.WebhookVerifyToken == "" {
		return errors.New("WEBHOOK_VERIFY_TOKEN is required")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
