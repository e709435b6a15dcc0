package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
homeassistant:
  url: http://homeassistant.local:8123
  token: abc
elasticsearch:
  url: https://es.local:9200
  username: hass
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Pipeline.PublishInterval != 60*time.Second {
		t.Fatalf("expected publish interval default 60s, got %s", cfg.Pipeline.PublishInterval)
	}
	if cfg.Pipeline.PollingInterval != 60*time.Second {
		t.Fatalf("expected polling interval default 60s, got %s", cfg.Pipeline.PollingInterval)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Elasticsearch.RequestTimeout != 30*time.Second {
		t.Fatalf("expected es request timeout 30s, got %s", cfg.Elasticsearch.RequestTimeout)
	}

	gw := cfg.GatewayConfig()
	if !gw.VerifyCerts || !gw.CheckPrivileges {
		t.Fatalf("expected certificate and privilege checks on by default, got %+v", gw)
	}

	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !settings.AllowsChange(domain.ChangeState) || !settings.AllowsChange(domain.ChangeAttribute) {
		t.Fatalf("expected state and attribute changes by default")
	}
	if settings.AllowsChange(domain.ChangePolled) {
		t.Fatalf("polled records must not pass with polling disabled")
	}
}

func TestLoadPipelineSection(t *testing.T) {
	path := writeConfig(t, `
elasticsearch:
  url: https://es.local:9200
  verify_certs: false
  compress: true
pipeline:
  publish_interval: 15s
  polling_enabled: true
  polling_interval: 2m
  change_types: [STATE]
  included_domains: [sensor, light]
  excluded_entities: [sensor.noisy]
  tags: [home, lab]
  debug_attribute_filtering: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	if settings.PublishInterval != 15*time.Second || settings.PollingInterval != 2*time.Minute {
		t.Fatalf("unexpected intervals: %s / %s", settings.PublishInterval, settings.PollingInterval)
	}
	if !settings.AllowsChange(domain.ChangePolled) {
		t.Fatalf("expected POLLED allowed when polling is enabled")
	}
	if settings.AllowsChange(domain.ChangeAttribute) {
		t.Fatalf("ATTRIBUTE was not configured")
	}
	if !settings.IncludedDomains.Has("light") || !settings.ExcludedEntities.Has("sensor.noisy") {
		t.Fatalf("filter lists not carried over: %+v", settings)
	}
	if len(settings.Tags) != 2 || !settings.DebugAttributeFiltering {
		t.Fatalf("unexpected tags/debug flag: %+v", settings)
	}
	gw := cfg.GatewayConfig()
	if gw.VerifyCerts || !gw.Compress {
		t.Fatalf("expected verify off and compression on, got %+v", gw)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
homeassistant:
  url: http://homeassistant.local:8123
elasticsearch:
  url: https://es.local:9200
`)
	t.Setenv("HASSFLOW_HA_TOKEN", "from-env")
	t.Setenv("HASSFLOW_ES_PASSWORD", "s3cret")
	t.Setenv("HASSFLOW_PIPELINE_PUBLISH_INTERVAL", "5s")
	t.Setenv("HASSFLOW_PIPELINE_EXCLUDED_DOMAINS", "automation,script")
	t.Setenv("HASSFLOW_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HomeAssistant.Token != "from-env" {
		t.Fatalf("expected token from env, got %q", cfg.HomeAssistant.Token)
	}
	if err := cfg.HomeAssistant.Validate(); err != nil {
		t.Fatalf("host config should be complete: %v", err)
	}
	if cfg.Elasticsearch.Password != "s3cret" {
		t.Fatalf("expected password from env")
	}
	if cfg.Pipeline.PublishInterval != 5*time.Second {
		t.Fatalf("expected publish interval 5s, got %s", cfg.Pipeline.PublishInterval)
	}
	if len(cfg.Pipeline.ExcludedDomains) != 2 || cfg.Pipeline.ExcludedDomains[1] != "script" {
		t.Fatalf("unexpected excluded domains %v", cfg.Pipeline.ExcludedDomains)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.Log.Level)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("HASSFLOW_ES_URL", "http://localhost:9200")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Elasticsearch.URL != "http://localhost:9200" {
		t.Fatalf("unexpected url %q", cfg.Elasticsearch.URL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"missing es url": `
pipeline:
  publish_interval: 10s
`,
		"bad change type": `
elasticsearch:
  url: http://localhost:9200
pipeline:
  change_types: [STATE, SOMETIMES]
`,
		"negative publish interval": `
elasticsearch:
  url: http://localhost:9200
pipeline:
  publish_interval: -1s
`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, data))
			if !errors.Is(err, errs.ErrInvalidConfig) {
				t.Fatalf("expected invalid config error, got %v", err)
			}
		})
	}
}

func TestHostValidate(t *testing.T) {
	if err := (HomeAssistantConfig{URL: "http://ha"}).Validate(); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected missing token to be rejected, got %v", err)
	}
	if err := (HomeAssistantConfig{Token: "x"}).Validate(); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected missing url to be rejected, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadSampleConfig(t *testing.T) {
	t.Setenv("HASSFLOW_HA_TOKEN", "from-env")

	cfg, err := Load(filepath.Join("..", "..", "..", "data", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if !cfg.HomeAssistant.VerifyCerts || !cfg.Elasticsearch.VerifyCerts {
		t.Fatalf("expected verify_certs true in both sections, got %+v / %+v", cfg.HomeAssistant, cfg.Elasticsearch)
	}
	gw := cfg.GatewayConfig()
	if !gw.Compress || !gw.CheckPrivileges {
		t.Fatalf("expected compression and privilege check on, got %+v", gw)
	}
	if !cfg.HostConfig().VerifyCerts {
		t.Fatalf("expected host config to verify certificates")
	}
}

func TestLoadVerifyCertsDisabled(t *testing.T) {
	path := writeConfig(t, `
homeassistant:
  url: https://homeassistant.local:8123
  verify_certs: false
elasticsearch:
  url: https://es.local:9200
  verify_certs: false
  check_privileges: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HostConfig().VerifyCerts {
		t.Fatalf("expected host verification off")
	}
	gw := cfg.GatewayConfig()
	if gw.VerifyCerts || gw.CheckPrivileges {
		t.Fatalf("expected verification and privilege check off, got %+v", gw)
	}
}
