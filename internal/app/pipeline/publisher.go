package pipeline

import (
	"context"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/memo"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const indexCacheSize = 128

// Publisher wraps documents into create actions and sends them in one bulk request.
type Publisher struct {
	gw      ports.Gateway
	obs     ports.Observability
	indices *memo.LRU[string]
}

func NewPublisher(gw ports.Gateway, obs ports.Observability) *Publisher {
	return &Publisher{gw: gw, obs: obs, indices: memo.NewLRU[string](indexCacheSize)}
}

// IndexFor resolves the index name of a datastream triple.
func (p *Publisher) IndexFor(ds domain.Datastream) string {
	key := ds.Type + "\x00" + ds.Dataset + "\x00" + ds.Namespace
	if name, ok := p.indices.Get(key); ok {
		return name
	}
	name := ds.IndexName()
	p.indices.Set(key, name)
	return name
}

// Publish sends docs. Documents the cluster rejects are logged and counted;
// only a failure of the request itself is returned.
func (p *Publisher) Publish(ctx context.Context, docs []domain.Document) (domain.BulkResult, error) {
	if len(docs) == 0 {
		return domain.BulkResult{}, nil
	}
	actions := make([]domain.BulkAction, len(docs))
	for i := range docs {
		actions[i] = domain.BulkAction{
			Operation: domain.BulkOpCreate,
			Index:     p.IndexFor(docs[i].DataStream),
			Document:  &docs[i],
		}
	}

	start := time.Now()
	res, err := p.gw.Bulk(ctx, actions)
	p.obs.ObserveLatency(ports.MetricPublishLatency, time.Since(start).Seconds())
	if err != nil {
		return res, err
	}

	failed := 0
	for _, item := range res.Items {
		if item.Failed() {
			failed++
			p.obs.RecordBulkFailure(item)
		}
	}
	p.obs.IncCounter(ports.MetricDocumentsPublished, float64(len(actions)-failed))
	return res, nil
}
