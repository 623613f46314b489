package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the storepulse server and worker.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AI         AIConfig
	Report     ReportConfig
	Enrichment EnrichmentConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port int    `env:"STOREPULSE_PORT" envDefault:"8080"`
	Env  string `env:"STOREPULSE_ENV" envDefault:"development"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
	MigrationsDir   string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type AIConfig struct {
	Provider             string        `env:"AI_PROVIDER"`
	InferenceTimeoutSecs int           `env:"AI_INFERENCE_TIMEOUT_SECS" envDefault:"45"`
	InferenceTimeout     time.Duration `env:"-"`
	Ollama               OllamaConfig
	VLLM                 VLLMConfig
	OpenAI               OpenAIConfig
	Anthropic            AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	Model   string `env:"OLLAMA_MODEL" envDefault:"llama3"`
}

type VLLMConfig struct {
	BaseURL string `env:"VLLM_BASE_URL" envDefault:"http://localhost:8000"`
	Model   string `env:"VLLM_MODEL"`
}

type OpenAIConfig struct {
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

type AnthropicConfig struct {
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	Model   string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
}

// ReportConfig bounds what the worker sends to the AI provider.
type ReportConfig struct {
	MaxRows              int  `env:"REPORT_MAX_ROWS" envDefault:"300"`
	MaxFieldBytes        int  `env:"REPORT_MAX_FIELD_BYTES" envDefault:"500"`
	PlaceholderOnFailure bool `env:"REPORT_PLACEHOLDER_ON_FAILURE" envDefault:"false"`
}

// EnrichmentConfig bounds the background mood/theme tagging of submissions.
type EnrichmentConfig struct {
	TimeoutSecs   int           `env:"ENRICH_TIMEOUT_SECS" envDefault:"8"`
	Timeout       time.Duration `env:"-"`
	MaxConcurrent int           `env:"ENRICH_MAX_CONCURRENT" envDefault:"4"`
	RatePerSec    float64       `env:"ENRICH_RATE_PER_SEC" envDefault:"2"`
}

type RateLimitConfig struct {
	PerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// ClientConfig configures the storepulse CLI when it talks to a running server.
type ClientConfig struct {
	APIURL string `env:"STOREPULSE_API_URL" envDefault:"http://localhost:8080"`
	APIKey string `env:"STOREPULSE_API_KEY"`
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker is Load for one-shot worker invocations, which need the
// database and the AI provider but not Redis.
func LoadWorker() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return nil, err
	}
	if err := cfg.validateAI(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for admin commands that only touch Postgres.
func LoadDatabase() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the CLI's server address and API key.
func LoadClient() (*ClientConfig, error) {
	var c ClientConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if !isHTTPURL(c.APIURL) {
		return nil, fmt.Errorf("STOREPULSE_API_URL must start with http:// or https://, got %q", c.APIURL)
	}
	return &c, nil
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.AI.InferenceTimeout = time.Duration(cfg.AI.InferenceTimeoutSecs) * time.Second
	cfg.Enrichment.Timeout = time.Duration(cfg.Enrichment.TimeoutSecs) * time.Second
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := c.validateAI(); err != nil {
		return err
	}

	if c.Enrichment.Timeout <= 0 {
		return fmt.Errorf("ENRICH_TIMEOUT_SECS must be positive")
	}
	if c.Enrichment.Timeout >= c.AI.InferenceTimeout {
		return fmt.Errorf("ENRICH_TIMEOUT_SECS must be shorter than AI_INFERENCE_TIMEOUT_SECS")
	}
	if c.Enrichment.MaxConcurrent <= 0 {
		return fmt.Errorf("ENRICH_MAX_CONCURRENT must be positive")
	}
	if c.Enrichment.RatePerSec <= 0 {
		return fmt.Errorf("ENRICH_RATE_PER_SEC must be positive")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func (c *Config) validateAI() error {
	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive")
	}

	if c.Report.MaxRows <= 0 || c.Report.MaxRows > 5000 {
		return fmt.Errorf("REPORT_MAX_ROWS must be between 1 and 5000, got %d", c.Report.MaxRows)
	}
	if c.Report.MaxFieldBytes < 32 {
		return fmt.Errorf("REPORT_MAX_FIELD_BYTES must be at least 32, got %d", c.Report.MaxFieldBytes)
	}
	return nil
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
