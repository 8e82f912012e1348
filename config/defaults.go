package config

import "time"

// defaultStage returns the baseline model parameters shared by all stages.
func defaultStage(temperature float32) StageConfig {
	return StageConfig{
		Model:       "gpt-4o-mini",
		Temperature: temperature,
		MaxTokens:   2048,
		Timeout:     60 * time.Second,
	}
}

// Default returns the built-in configuration. Review stages run cooler than
// the drafter so their scores stay stable across iterations.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com",
			RequestsPerSecond: 5,
			Burst:             10,
			MaxPromptTokens:   100_000,
			MaxRetries:        2,
			RetryBackoff:      200 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			QualityThreshold:    0.8,
			MaxIterations:       3,
			ProceedOnExhaustion: true,
			MaxConcurrentRuns:   8,
			Drafter:             defaultStage(0.7),
			Feasibility:         defaultStage(0.2),
			Testability:         defaultStage(0.2),
			Compliance:          defaultStage(0.1),
			Creator:             defaultStage(0.0),
		},
		Jira: JiraConfig{
			Timeout: 30 * time.Second,
		},
		Confluence: ConfluenceConfig{
			Timeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "ticketflow:events",
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "ticketflow.db",
			SSLMode: "disable",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "ticketflow",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}
