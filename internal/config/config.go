// Package config holds the immutable pipeline configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TauMode selects how the edge-retention threshold is determined.
type TauMode string

const (
	// TauFixed uses the configured Tau value as-is.
	TauFixed TauMode = "fixed"

	// TauAdaptive resolves tau as a percentile of the observed
	// combined-score distribution.
	TauAdaptive TauMode = "adaptive"
)

// Pipeline is the resolved configuration for one clustering run. It is
// built once by Load/LoadFile and passed by value into each stage; stages
// never read ambient state.
type Pipeline struct {
	// Embedding provider: "ollama" or "openai".
	Provider string `yaml:"provider"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// Dimension is the expected embedding width. Vectors of any other
	// width abort the run.
	Dimension int `yaml:"dimension"`

	// K is the number of nearest neighbours queried per company.
	K int `yaml:"k"`

	// Tau is the edge-retention threshold (fixed mode) in [0,1].
	Tau float64 `yaml:"tau"`

	// TauMode is "fixed" or "adaptive".
	TauMode TauMode `yaml:"tau_mode"`

	// TauPercentile is the percentile (0-100) used in adaptive mode.
	TauPercentile float64 `yaml:"tau_percentile"`

	// Alpha weights the product vector in fusion; 1-alpha goes to the
	// customer vector.
	Alpha float64 `yaml:"alpha"`

	// TextWeight and CategoryWeight combine text and tag similarity into
	// the edge score. They should sum to 1.
	TextWeight     float64 `yaml:"text_weight"`
	CategoryWeight float64 `yaml:"category_weight"`

	// Seed drives community detection and validation sampling.
	Seed int64 `yaml:"seed"`

	// SampleClusters bounds the validation sample.
	SampleClusters int `yaml:"sample_clusters"`

	// SampleMembers bounds members shown per sampled cluster.
	SampleMembers int `yaml:"sample_members"`

	// BatchSize is the embedding request batch size.
	BatchSize int `yaml:"batch_size"`

	// Concurrency is the embedding worker count.
	Concurrency int `yaml:"concurrency"`

	// MaxRetries bounds retry attempts per embedding batch.
	MaxRetries int `yaml:"max_retries"`

	// LLMReview enables the optional LLM pass over the sampled
	// clusters: a segment summary, a 1-10 quality score and per-member
	// fit scores.
	LLMReview bool `yaml:"llm_review"`

	// LLMModel is the chat model used by the review pass.
	LLMModel string `yaml:"llm_model"`

	// OllamaHost is the Ollama server URL (ollama provider).
	OllamaHost string `yaml:"ollama_host"`

	// OpenAIAPIKey authenticates the openai provider. Env only, never
	// read from the config file.
	OpenAIAPIKey string `yaml:"-"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables with defaults
// matching the original clustering study (k=20, tau=0.55, alpha=0.6).
func Load() Pipeline {
	return Pipeline{
		Provider:       getEnv("COMPCLUSTER_PROVIDER", "ollama"),
		Model:          getEnv("COMPCLUSTER_MODEL", "all-minilm:l6-v2"),
		Dimension:      getEnvInt("COMPCLUSTER_DIMENSION", 384),
		K:              getEnvInt("COMPCLUSTER_K", 20),
		Tau:            getEnvFloat("COMPCLUSTER_TAU", 0.55),
		TauMode:        TauMode(getEnv("COMPCLUSTER_TAU_MODE", string(TauFixed))),
		TauPercentile:  getEnvFloat("COMPCLUSTER_TAU_PERCENTILE", 75),
		Alpha:          getEnvFloat("COMPCLUSTER_ALPHA", 0.6),
		TextWeight:     getEnvFloat("COMPCLUSTER_TEXT_WEIGHT", 0.8),
		CategoryWeight: getEnvFloat("COMPCLUSTER_CATEGORY_WEIGHT", 0.2),
		Seed:           int64(getEnvInt("COMPCLUSTER_SEED", 42)),
		SampleClusters: getEnvInt("COMPCLUSTER_SAMPLE_CLUSTERS", 10),
		SampleMembers:  getEnvInt("COMPCLUSTER_SAMPLE_MEMBERS", 10),
		BatchSize:      getEnvInt("COMPCLUSTER_BATCH_SIZE", 64),
		Concurrency:    getEnvInt("COMPCLUSTER_CONCURRENCY", 4),
		MaxRetries:     getEnvInt("COMPCLUSTER_MAX_RETRIES", 3),
		LLMReview:      getEnvBool("COMPCLUSTER_LLM_REVIEW", false),
		LLMModel:       getEnv("COMPCLUSTER_LLM_MODEL", "gpt-4o-mini"),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		LogFile:        getEnv("COMPCLUSTER_LOG_FILE", ""),
		LogLevel:       parseLogLevel(getEnv("COMPCLUSTER_LOG_LEVEL", "INFO")),
	}
}

// LoadFile overlays a YAML config file onto the environment defaults.
// File values win over environment values for the keys they set.
func LoadFile(path string) (Pipeline, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Pipeline{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Pipeline{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no stage could run with.
func (p Pipeline) Validate() error {
	switch {
	case p.K <= 0:
		return fmt.Errorf("k must be positive, got %d", p.K)
	case p.Tau < 0 || p.Tau > 1:
		return fmt.Errorf("tau must be in [0,1], got %g", p.Tau)
	case p.Alpha < 0 || p.Alpha > 1:
		return fmt.Errorf("alpha must be in [0,1], got %g", p.Alpha)
	case p.TextWeight < 0 || p.CategoryWeight < 0:
		return fmt.Errorf("similarity weights must be non-negative")
	case p.TauMode != TauFixed && p.TauMode != TauAdaptive:
		return fmt.Errorf("unknown tau mode %q", p.TauMode)
	case p.TauMode == TauAdaptive && (p.TauPercentile <= 0 || p.TauPercentile >= 100):
		return fmt.Errorf("tau percentile must be in (0,100), got %g", p.TauPercentile)
	case p.Dimension <= 0:
		return fmt.Errorf("dimension must be positive, got %d", p.Dimension)
	case p.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	case p.Concurrency <= 0:
		return fmt.Errorf("concurrency must be positive, got %d", p.Concurrency)
	case p.MaxRetries < 0:
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	case p.LLMReview && p.LLMModel == "":
		return fmt.Errorf("llm review enabled but no llm model configured")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
