// Package config loads and validates the ticketflow configuration.
//
// Configuration is resolved once at process start and treated as read-only
// afterwards. Precedence: built-in defaults, then a YAML file, then
// environment variables with the TICKETFLOW prefix.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TICKETFLOW").
//	    Load()
package config
