package datastream

import (
	"context"
	"fmt"

	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// Manager keeps the cluster's index template current.
type Manager struct {
	cluster ports.IndexLifecycle
	obs     ports.Observability
}

func NewManager(cluster ports.IndexLifecycle, obs ports.Observability) *Manager {
	return &Manager{cluster: cluster, obs: obs}
}

// Init installs the template when it is missing. When an older version is
// installed it is replaced and every matching datastream is rolled over so
// its next write index picks up the new mapping. An up to date template
// means no writes at all.
func (m *Manager) Init(ctx context.Context) error {
	installed, found, err := m.cluster.GetIndexTemplate(ctx, TemplateName)
	if err != nil {
		return fmt.Errorf("get index template: %w", err)
	}
	if found && installed.Version >= TemplateVersion {
		m.obs.LogDebug("index_template_current", ports.F("version", installed.Version))
		return nil
	}

	body, err := Build(m.cluster.Capabilities())
	if err != nil {
		return err
	}
	if err := m.cluster.PutIndexTemplate(ctx, TemplateName, body); err != nil {
		return fmt.Errorf("put index template: %w", err)
	}
	if !found {
		m.obs.LogInfo("index_template_installed", ports.F("version", TemplateVersion))
		return nil
	}

	m.obs.LogInfo("index_template_updated",
		ports.F("from_version", installed.Version),
		ports.F("to_version", TemplateVersion))
	return m.rolloverAll(ctx)
}

func (m *Manager) rolloverAll(ctx context.Context) error {
	names, err := m.cluster.GetDatastreams(ctx, DatastreamPattern)
	if err != nil {
		return fmt.Errorf("list datastreams: %w", err)
	}
	for _, name := range names {
		if err := m.cluster.RolloverDatastream(ctx, name); err != nil {
			return fmt.Errorf("rollover %s: %w", name, err)
		}
		m.obs.LogInfo("datastream_rolled_over", ports.F("datastream", name))
	}
	return nil
}
