package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the triad server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Breaker   BreakerConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// PipelineConfig controls the three-stage run.
type PipelineConfig struct {
	// TotalBudget is the overall wall-clock ceiling for one pipeline run,
	// independent of per-stage timeouts.
	TotalBudget time.Duration
	// PollMaxWait bounds how long a non-owner caller may block polling.
	PollMaxWait time.Duration
	Strategist  StageConfig
	Planner     StageConfig
	Validator   StageConfig
}

// StageConfig configures one pipeline stage.
type StageConfig struct {
	Provider        string
	Model           string
	Timeout         time.Duration
	Effort          string
	MaxOutputTokens int
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int
	ResetInterval    time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type GoogleConfig struct {
	APIKey string
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRIAD_PORT", 8080),
			Env:  envString("TRIAD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Pipeline: PipelineConfig{
			TotalBudget: envDurationSecs("TRIAD_TOTAL_BUDGET_SECS", 180*time.Second),
			PollMaxWait: envDurationSecs("TRIAD_POLL_MAX_WAIT_SECS", 10*time.Second),
			Strategist: StageConfig{
				Provider:        envString("TRIAD_STRATEGIST_PROVIDER", "anthropic"),
				Model:           envString("TRIAD_STRATEGIST_MODEL", "claude-sonnet-4-20250514"),
				Timeout:         envDurationSecs("TRIAD_STRATEGIST_TIMEOUT_SECS", 60*time.Second),
				Effort:          envString("TRIAD_STRATEGIST_EFFORT", "medium"),
				MaxOutputTokens: envInt("TRIAD_STRATEGIST_MAX_OUTPUT_TOKENS", 4096),
			},
			Planner: StageConfig{
				Provider:        envString("TRIAD_PLANNER_PROVIDER", "openai"),
				Model:           envString("TRIAD_PLANNER_MODEL", "gpt-5"),
				Timeout:         envDurationSecs("TRIAD_PLANNER_TIMEOUT_SECS", 90*time.Second),
				Effort:          envString("TRIAD_PLANNER_EFFORT", "extended"),
				MaxOutputTokens: envInt("TRIAD_PLANNER_MAX_OUTPUT_TOKENS", 8192),
			},
			Validator: StageConfig{
				Provider:        envString("TRIAD_VALIDATOR_PROVIDER", "google"),
				Model:           envString("TRIAD_VALIDATOR_MODEL", "gemini-2.0-flash-001"),
				Timeout:         envDurationSecs("TRIAD_VALIDATOR_TIMEOUT_SECS", 45*time.Second),
				Effort:          envString("TRIAD_VALIDATOR_EFFORT", "low"),
				MaxOutputTokens: envInt("TRIAD_VALIDATOR_MAX_OUTPUT_TOKENS", 8192),
			},
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("TRIAD_BREAKER_FAILURE_THRESHOLD", 3),
			ResetInterval:    envDurationSecs("TRIAD_BREAKER_RESET_SECS", 30*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
		},
		Anthropic: AnthropicConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		},
		Google: GoogleConfig{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Pipeline.TotalBudget <= 0 {
		return fmt.Errorf("TRIAD_TOTAL_BUDGET_SECS must be positive")
	}

	stages := map[string]StageConfig{
		"strategist": c.Pipeline.Strategist,
		"planner":    c.Pipeline.Planner,
		"validator":  c.Pipeline.Validator,
	}
	for name, sc := range stages {
		if !validProviders[sc.Provider] {
			return fmt.Errorf("%s provider must be one of openai, anthropic, google, mock; got %q", name, sc.Provider)
		}
		if sc.Timeout <= 0 {
			return fmt.Errorf("%s timeout must be positive", name)
		}
		if err := c.requireProviderKey(name, sc.Provider); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) requireProviderKey(stage, provider string) error {
	switch provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when %s provider is openai", stage)
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when %s provider is anthropic", stage)
		}
	case "google":
		if c.Google.APIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required when %s provider is google", stage)
		}
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
