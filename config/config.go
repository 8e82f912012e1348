package config

import (
	"fmt"
	"time"
)

// Config is the complete ticketflow configuration, immutable after Load.
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Pipeline   PipelineConfig   `yaml:"pipeline" env:"PIPELINE"`
	Jira       JiraConfig       `yaml:"jira" env:"JIRA"`
	Confluence ConfluenceConfig `yaml:"confluence" env:"CONFLUENCE"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Per-client request rate limit applied by middleware.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// LLMConfig holds hosted model client settings shared by all stages.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	// RequestsPerSecond caps outbound model calls across the process.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
	// MaxPromptTokens rejects prompts that would blow the context window
	// before the request leaves the process.
	MaxPromptTokens int `yaml:"max_prompt_tokens" env:"MAX_PROMPT_TOKENS"`
	// MaxRetries is the number of additional attempts after a retryable
	// failure (rate limit, overload, transient network error).
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
}

// StageConfig holds the model parameters of one pipeline stage.
type StageConfig struct {
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PipelineConfig holds the quality gate, iteration budget, and per-stage
// model parameters.
type PipelineConfig struct {
	QualityThreshold float64 `yaml:"quality_threshold" env:"QUALITY_THRESHOLD"`
	MaxIterations    int     `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// ProceedOnExhaustion selects the degradation policy when the iteration
	// budget runs out below threshold: proceed with the best attempt (true)
	// or fail the run (false).
	ProceedOnExhaustion bool  `yaml:"proceed_on_exhaustion" env:"PROCEED_ON_EXHAUSTION"`
	MaxConcurrentRuns   int64 `yaml:"max_concurrent_runs" env:"MAX_CONCURRENT_RUNS"`

	Drafter     StageConfig `yaml:"drafter" env:"DRAFTER"`
	Feasibility StageConfig `yaml:"feasibility" env:"FEASIBILITY"`
	Testability StageConfig `yaml:"testability" env:"TESTABILITY"`
	Compliance  StageConfig `yaml:"compliance" env:"COMPLIANCE"`
	Creator     StageConfig `yaml:"creator" env:"CREATOR"`
}

// JiraConfig holds issue tracker API settings.
type JiraConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Email      string        `yaml:"email" env:"EMAIL"`
	APIToken   string        `yaml:"api_token" env:"API_TOKEN"`
	ProjectKey string        `yaml:"project_key" env:"PROJECT_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConfluenceConfig holds documentation search API settings.
type ConfluenceConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	APIToken string        `yaml:"api_token" env:"API_TOKEN"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig holds the optional Redis progress-event publisher settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Channel  string `yaml:"channel" env:"CHANNEL"`
}

// DatabaseConfig holds the optional run history store settings.
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Driver: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path" env:"PATH"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("server.metrics_port must differ from http_port")
	}
	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 1 {
		return fmt.Errorf("pipeline.quality_threshold must be in [0,1], got %v", c.Pipeline.QualityThreshold)
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be >= 1, got %d", c.Pipeline.MaxIterations)
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return fmt.Errorf("pipeline.max_concurrent_runs must be >= 1, got %d", c.Pipeline.MaxConcurrentRuns)
	}
	for _, sc := range []struct {
		name string
		cfg  StageConfig
	}{
		{"drafter", c.Pipeline.Drafter},
		{"feasibility", c.Pipeline.Feasibility},
		{"testability", c.Pipeline.Testability},
		{"compliance", c.Pipeline.Compliance},
		{"creator", c.Pipeline.Creator},
	} {
		if sc.cfg.Timeout <= 0 {
			return fmt.Errorf("pipeline.%s.timeout must be positive", sc.name)
		}
		if sc.cfg.MaxTokens <= 0 {
			return fmt.Errorf("pipeline.%s.max_tokens must be positive", sc.name)
		}
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required when auth is enabled")
	}
	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres, mysql, or sqlite, got %q", c.Database.Driver)
	}
	return nil
}
