package app

import "errors"

// Config holds what an App needs to run.
type Config struct {
	ConfigPaths []string // .hcl, .yaml and .yml files or directories
	EnvFiles    []string // dotenv files loaded before config, missing ones skipped

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one config path is required")
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		return nil, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	return &cfg, nil
}
