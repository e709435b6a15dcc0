package hassflow

import (
	"github.com/strawgate/homeassistant-elasticsearch/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// HomeAssistantConfig holds the WebSocket endpoint and access token.
	HomeAssistantConfig = config.HomeAssistantConfig
	// ElasticsearchConfig holds the cluster endpoint, credentials and TLS options.
	ElasticsearchConfig = config.ElasticsearchConfig
	// PipelineConfig controls filtering, polling and the publish schedule.
	PipelineConfig = config.PipelineConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig selects the log level and encoder.
	LogConfig = config.LogConfig
)

// LoadConfig loads YAML from disk (optional when path is empty) and applies
// HASSFLOW_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
