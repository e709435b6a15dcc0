package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/elasticsearch"
	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/homeassistant"
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// EnvPrefix prefixes every environment override, e.g. HASSFLOW_ES_PASSWORD.
const EnvPrefix = "HASSFLOW_"

type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant" envPrefix:"HA_"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" envPrefix:"ES_"`
	Pipeline      PipelineConfig      `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Metrics       MetricsConfig       `yaml:"metrics" envPrefix:"METRICS_"`
	Log           LogConfig           `yaml:"log" envPrefix:"LOG_"`
}

type HomeAssistantConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	Token          string        `yaml:"token" env:"TOKEN"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	VerifyCerts    bool          `yaml:"verify_certs" env:"VERIFY_CERTS"`
}

type ElasticsearchConfig struct {
	URL             string        `yaml:"url" env:"URL"`
	Username        string        `yaml:"username" env:"USERNAME"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	VerifyCerts     bool          `yaml:"verify_certs" env:"VERIFY_CERTS"`
	CACerts         string        `yaml:"ca_certs" env:"CA_CERTS"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	Compress        bool          `yaml:"compress" env:"COMPRESS"`
	CheckPrivileges bool          `yaml:"check_privileges" env:"CHECK_PRIVILEGES"`
}

type PipelineConfig struct {
	PublishInterval         time.Duration `yaml:"publish_interval" env:"PUBLISH_INTERVAL"`
	PollingEnabled          bool          `yaml:"polling_enabled" env:"POLLING_ENABLED"`
	PollingInterval         time.Duration `yaml:"polling_interval" env:"POLLING_INTERVAL"`
	ChangeTypes             []string      `yaml:"change_types" env:"CHANGE_TYPES"`
	IncludedDomains         []string      `yaml:"included_domains" env:"INCLUDED_DOMAINS"`
	ExcludedDomains         []string      `yaml:"excluded_domains" env:"EXCLUDED_DOMAINS"`
	IncludedEntities        []string      `yaml:"included_entities" env:"INCLUDED_ENTITIES"`
	ExcludedEntities        []string      `yaml:"excluded_entities" env:"EXCLUDED_ENTITIES"`
	Tags                    []string      `yaml:"tags" env:"TAGS"`
	DebugAttributeFiltering bool          `yaml:"debug_attribute_filtering" env:"DEBUG_ATTRIBUTE_FILTERING"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Load reads the YAML file at path (optional when empty), fills defaults,
// applies HASSFLOW_* environment overrides and validates the result. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HomeAssistant: HomeAssistantConfig{VerifyCerts: true},
		Elasticsearch: ElasticsearchConfig{VerifyCerts: true, CheckPrivileges: true},
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HomeAssistant.RequestTimeout == 0 {
		c.HomeAssistant.RequestTimeout = 30 * time.Second
	}
	if c.Elasticsearch.RequestTimeout == 0 {
		c.Elasticsearch.RequestTimeout = 30 * time.Second
	}
	if c.Pipeline.PublishInterval == 0 {
		c.Pipeline.PublishInterval = 60 * time.Second
	}
	if c.Pipeline.PollingInterval == 0 {
		c.Pipeline.PollingInterval = 60 * time.Second
	}
	if c.Pipeline.ChangeTypes == nil {
		c.Pipeline.ChangeTypes = []string{domain.ChangeState.String(), domain.ChangeAttribute.String()}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	var problems []error
	if c.Elasticsearch.URL == "" {
		problems = append(problems, errors.New("elasticsearch.url is required"))
	}
	if c.Pipeline.PublishInterval <= 0 {
		problems = append(problems, fmt.Errorf("pipeline.publish_interval must be positive, got %s", c.Pipeline.PublishInterval))
	}
	if c.Pipeline.PollingEnabled && c.Pipeline.PollingInterval <= 0 {
		problems = append(problems, fmt.Errorf("pipeline.polling_interval must be positive, got %s", c.Pipeline.PollingInterval))
	}
	if _, err := c.changeTypes(); err != nil {
		problems = append(problems, fmt.Errorf("pipeline.change_types: %w", err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// Validate checks the host section. It is separate because an embedding
// program may provide its own host instead of a Home Assistant connection.
func (h HomeAssistantConfig) Validate() error {
	if h.URL == "" {
		return fmt.Errorf("homeassistant.url is required: %w", errs.ErrInvalidConfig)
	}
	if h.Token == "" {
		return fmt.Errorf("homeassistant.token is required: %w", errs.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) changeTypes() ([]domain.ChangeReason, error) {
	out := make([]domain.ChangeReason, 0, len(c.Pipeline.ChangeTypes))
	for _, s := range c.Pipeline.ChangeTypes {
		r, err := domain.ParseChangeReason(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Settings builds the immutable pipeline settings.
func (c *Config) Settings() (ports.Settings, error) {
	changes, err := c.changeTypes()
	if err != nil {
		return ports.Settings{}, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}
	p := c.Pipeline
	return ports.NewSettings(ports.SettingsInput{
		IncludedDomains:         p.IncludedDomains,
		ExcludedDomains:         p.ExcludedDomains,
		IncludedEntities:        p.IncludedEntities,
		ExcludedEntities:        p.ExcludedEntities,
		ChangeTypes:             changes,
		PollingEnabled:          p.PollingEnabled,
		PollingInterval:         p.PollingInterval,
		PublishInterval:         p.PublishInterval,
		Tags:                    p.Tags,
		DebugAttributeFiltering: p.DebugAttributeFiltering,
	}), nil
}

// GatewayConfig maps the elasticsearch section onto the gateway's config.
func (c *Config) GatewayConfig() elasticsearch.Config {
	e := c.Elasticsearch
	return elasticsearch.Config{
		URL:             e.URL,
		Username:        e.Username,
		Password:        e.Password,
		APIKey:          e.APIKey,
		VerifyCerts:     e.VerifyCerts,
		CACertPath:      e.CACerts,
		RequestTimeout:  e.RequestTimeout,
		Compress:        e.Compress,
		CheckPrivileges: e.CheckPrivileges,
	}
}

// HostConfig maps the homeassistant section onto the WebSocket client's config.
func (c *Config) HostConfig() homeassistant.Config {
	h := c.HomeAssistant
	return homeassistant.Config{
		URL:            h.URL,
		Token:          h.Token,
		RequestTimeout: h.RequestTimeout,
		VerifyCerts:    h.VerifyCerts,
	}
}
