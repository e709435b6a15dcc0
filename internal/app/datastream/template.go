// Package datastream installs the index template the pipeline writes through
// and keeps existing datastreams on the current mapping.
package datastream

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

const (
	TemplateName      = domain.DatastreamType + "-" + domain.DatastreamDatasetPrefix
	DatastreamPattern = domain.DatastreamType + "-" + domain.DatastreamDatasetPrefix + ".*"
)

//go:embed index_template.json
var templateJSON []byte

// TemplateVersion is the version of the embedded template.
var TemplateVersion = mustVersion(templateJSON)

func mustVersion(raw []byte) int {
	var t struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &t); err != nil || t.Version == 0 {
		panic(fmt.Sprintf("embedded index template: missing version (%v)", err))
	}
	return t.Version
}

// Template returns the embedded template exactly as shipped.
func Template() []byte {
	return append([]byte(nil), templateJSON...)
}

// Build adapts the template to what the cluster supports: time series mode,
// datastream lifecycle and optional component templates are removed when
// the cluster lacks them.
func Build(caps domain.Capabilities) ([]byte, error) {
	var t map[string]any
	if err := json.Unmarshal(templateJSON, &t); err != nil {
		return nil, fmt.Errorf("decode index template: %w", err)
	}
	inner, _ := t["template"].(map[string]any)

	if !caps.TimeSeriesDatastream {
		if settings, ok := inner["settings"].(map[string]any); ok {
			delete(settings, "index.mode")
		}
	}
	if !caps.DatastreamLifecycle {
		delete(inner, "lifecycle")
	}
	if !caps.IgnoreMissingComponentTemplates {
		delete(t, "ignore_missing_component_templates")
		delete(t, "composed_of")
	}

	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode index template: %w", err)
	}
	return out, nil
}
