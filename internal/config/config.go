// Package config loads application configuration from environment
// variables, honoring an optional .env file.
//
// Environment Variables:
//
// Transcription backend:
//   - STT_BACKEND: backend kind: "http", "whisper-local" or "aws-transcribe" (default: http)
//   - STT_API_URL: transcription endpoint for the http backend
//   - STT_API_KEY: bearer token for the http backend (optional)
//   - STT_MODEL: model name sent to the backend (default: whisper-1)
//   - STT_RPM: request rate limit per minute for the http backend (default: 20)
//   - STT_TIMEOUT: per-request timeout in seconds (default: 300)
//   - STT_LANGUAGE: language hint passed to the backend (optional, BCP 47)
//   - WHISPER_BIN: whisper.cpp binary for the local backend (default: whisper-cli)
//   - WHISPER_MODEL: ggml model path for the local backend
//   - WHISPER_THREADS: thread count for the local backend (default: 4)
//   - AWS_S3_BUCKET: staging bucket for the aws-transcribe backend
//   - AWS_TRANSCRIBE_LANGUAGE: language code, empty enables auto-detection
//
// Pipeline:
//   - CHUNK_LENGTH: chunk length in seconds (default: 600)
//   - CHUNK_OVERLAP: overlap window in seconds (default: 10)
//   - MAX_CONCURRENT: simultaneous chunk transcriptions (default: 3)
//   - CACHE_DIR: result cache directory (default: <data dir>/cache)
//   - CACHE_TTL: cache entry lifetime in hours (default: 24)
//
// Text correction (optional, disabled without LLM_API_KEY):
//   - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS,
//     LLM_TEMPERATURE, LLM_TIMEOUT, LLM_SITE_URL, LLM_APP_NAME
//
// Library and daemon:
//   - MEDIA_DIRS: colon-separated media directories to scan
//   - DATA_DIR: state directory for the job database (default: /app/data)
//   - CRON_EXPR: daemon scan schedule (default: 0 0 * * *)
//   - LISTEN_ADDR: HTTP API listen address (default: :8099)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"subforge/internal/backend"
	"subforge/internal/llm"
	"subforge/internal/pipeline"
)

type Config struct {
	Transcribe TranscribeConfig `json:"transcribe"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	LLM        llm.Config       `json:"llm"`
	Library    LibraryConfig    `json:"library"`
	Daemon     DaemonConfig     `json:"daemon"`
}

type TranscribeConfig struct {
	Backend  string `json:"backend"`
	Language string `json:"language"`

	APIURL  string `json:"api_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	RPM     int    `json:"rpm"`
	Timeout int    `json:"timeout"`

	WhisperBin     string `json:"whisper_bin"`
	WhisperModel   string `json:"whisper_model"`
	WhisperThreads int    `json:"whisper_threads"`

	AWSBucket   string `json:"aws_bucket"`
	AWSLanguage string `json:"aws_language"`
}

type PipelineConfig struct {
	ChunkLength   time.Duration `json:"chunk_length"`
	Overlap       time.Duration `json:"overlap"`
	MaxConcurrent int           `json:"max_concurrent"`
	CacheDir      string        `json:"cache_dir"`
	CacheTTL      time.Duration `json:"cache_ttl"`
}

type LibraryConfig struct {
	MediaDirs []string `json:"media_dirs"`
	DataDir   string   `json:"data_dir"`
}

type DaemonConfig struct {
	CronExpr   string `json:"cron_expr"`
	ListenAddr string `json:"listen_addr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options. An .env file in the working directory is loaded
// first when present.
func NewFromEnv(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnvString("DATA_DIR", "/app/data")
	config := &Config{
		Transcribe: TranscribeConfig{
			Backend:        getEnvString("STT_BACKEND", "http"),
			Language:       getEnvString("STT_LANGUAGE", ""),
			APIURL:         getEnvString("STT_API_URL", ""),
			APIKey:         getEnvString("STT_API_KEY", ""),
			Model:          getEnvString("STT_MODEL", "whisper-1"),
			RPM:            getEnvInt("STT_RPM", 20),
			Timeout:        getEnvInt("STT_TIMEOUT", 300),
			WhisperBin:     getEnvString("WHISPER_BIN", "whisper-cli"),
			WhisperModel:   getEnvString("WHISPER_MODEL", ""),
			WhisperThreads: getEnvInt("WHISPER_THREADS", 4),
			AWSBucket:      getEnvString("AWS_S3_BUCKET", ""),
			AWSLanguage:    getEnvString("AWS_TRANSCRIBE_LANGUAGE", ""),
		},
		Pipeline: PipelineConfig{
			ChunkLength:   time.Duration(getEnvInt("CHUNK_LENGTH", 600)) * time.Second,
			Overlap:       time.Duration(getEnvInt("CHUNK_OVERLAP", 10)) * time.Second,
			MaxConcurrent: getEnvInt("MAX_CONCURRENT", 3),
			CacheDir:      getEnvString("CACHE_DIR", filepath.Join(dataDir, "cache")),
			CacheTTL:      time.Duration(getEnvInt("CACHE_TTL", 24)) * time.Hour,
		},
		LLM: llm.Config{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Library: LibraryConfig{
			MediaDirs: splitPaths(getEnvString("MEDIA_DIRS", "")),
			DataDir:   dataDir,
		},
		Daemon: DaemonConfig{
			CronExpr:   getEnvString("CRON_EXPR", "0 0 * * *"),
			ListenAddr: getEnvString("LISTEN_ADDR", ":8099"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Transcribe.Backend {
	case "http":
		if c.Transcribe.APIURL == "" {
			return fmt.Errorf("STT_API_URL is required for the http backend")
		}
	case "whisper-local":
		if c.Transcribe.WhisperModel == "" {
			return fmt.Errorf("WHISPER_MODEL is required for the whisper-local backend")
		}
	case "aws-transcribe":
		if c.Transcribe.AWSBucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required for the aws-transcribe backend")
		}
	default:
		return fmt.Errorf("unknown STT_BACKEND %q", c.Transcribe.Backend)
	}

	if c.Transcribe.Language != "" {
		if _, err := language.Parse(c.Transcribe.Language); err != nil {
			return fmt.Errorf("invalid STT_LANGUAGE: %w", err)
		}
	}
	if c.Pipeline.Overlap >= c.Pipeline.ChunkLength {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_LENGTH")
	}
	return nil
}

// OptimizeEnabled reports whether the LLM correction step is configured.
func (c *Config) OptimizeEnabled() bool {
	return c.LLM.APIKey != ""
}

// BackendSettings maps the flat env config onto backend construction
// settings.
func (c *Config) BackendSettings() backend.Settings {
	return backend.Settings{
		Kind: c.Transcribe.Backend,
		HTTP: backend.HTTPConfig{
			URL:               c.Transcribe.APIURL,
			APIKey:            c.Transcribe.APIKey,
			Model:             c.Transcribe.Model,
			RequestsPerMinute: c.Transcribe.RPM,
			Timeout:           time.Duration(c.Transcribe.Timeout) * time.Second,
		},
		Whisper: backend.WhisperCPPConfig{
			BinaryPath: c.Transcribe.WhisperBin,
			ModelPath:  c.Transcribe.WhisperModel,
			Threads:    c.Transcribe.WhisperThreads,
		},
		AWS: backend.AWSConfig{
			Bucket:       c.Transcribe.AWSBucket,
			LanguageCode: c.Transcribe.AWSLanguage,
		},
	}
}

// PipelineSettings maps onto the pipeline's own tuning struct.
func (c *Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{
		ChunkLength:   c.Pipeline.ChunkLength,
		Overlap:       c.Pipeline.Overlap,
		MaxConcurrent: c.Pipeline.MaxConcurrent,
		CacheTTL:      c.Pipeline.CacheTTL,
	}
}

// DBPath is the location of the job database inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Library.DataDir, "subforge.db")
}

func splitPaths(raw string) []string {
	ret := make([]string, 0)
	for _, part := range strings.Split(raw, string(os.PathListSeparator)) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
