package ports

import (
	"context"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

// Gateway is the write path into the cluster.
type Gateway interface {
	// Ping reports whether the cluster is reachable right now.
	Ping(ctx context.Context) error
	// Bulk submits the actions in a single request. Per-document failures are
	// reported in the result, not as an error.
	Bulk(ctx context.Context, actions []domain.BulkAction) (domain.BulkResult, error)
}

// IndexLifecycle covers the template and datastream bookkeeping done at startup.
type IndexLifecycle interface {
	Capabilities() domain.Capabilities
	GetIndexTemplate(ctx context.Context, name string) (tpl domain.IndexTemplateInfo, found bool, err error)
	PutIndexTemplate(ctx context.Context, name string, body []byte) error
	GetDatastreams(ctx context.Context, pattern string) ([]string, error)
	RolloverDatastream(ctx context.Context, name string) error
}
