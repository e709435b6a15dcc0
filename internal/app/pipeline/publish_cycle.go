package pipeline

import (
	"context"
	"fmt"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// PublishCycle is one filter, format, publish pass over the queue.
type PublishCycle struct {
	q         ports.RecordQueue
	filterer  *Filterer
	formatter *Formatter
	publisher *Publisher
	gw        ports.Gateway
	obs       ports.Observability

	// onAuthFailure must not block; it is called from the publish loop.
	onAuthFailure func(error)
}

// Run drains what is queued at the start of the call and publishes it. If the
// cluster is unreachable the queue is left alone for the next run.
func (c *PublishCycle) Run(ctx context.Context) error {
	c.obs.IncCounter(ports.MetricPublishCycles, 1)
	c.obs.SetGauge(ports.MetricQueueLength, float64(c.q.Len()))

	if err := c.gw.Ping(ctx); err != nil {
		c.authCheck(err)
		c.obs.LogWarn("publish_skipped_no_connection", ports.F("error", err.Error()), ports.F("queued", c.q.Len()))
		return nil
	}

	records := c.q.Drain()
	if len(records) == 0 {
		return nil
	}

	docs := make([]domain.Document, 0, len(records))
	filtered := 0
	for _, rec := range records {
		if rec.State == nil {
			continue
		}
		if !c.filterer.Passes(rec.State.EntityID, rec.State.Domain(), rec.Reason) {
			filtered++
			continue
		}
		doc, err := c.format(rec)
		if err != nil {
			c.obs.LogError("format_failed", err, ports.F("entity_id", rec.State.EntityID))
			continue
		}
		docs = append(docs, doc)
	}
	c.obs.IncCounter(ports.MetricRecordsFiltered, float64(filtered))
	c.obs.IncCounter(ports.MetricDocumentsFormatted, float64(len(docs)))

	res, err := c.publisher.Publish(ctx, docs)
	if err != nil {
		c.obs.IncCounter(ports.MetricPublishCycleErrors, 1)
		c.authCheck(err)
		return fmt.Errorf("publish %d documents: %w", len(docs), err)
	}
	c.obs.LogDebug("publish_cycle_complete",
		ports.F("drained", len(records)),
		ports.F("filtered", filtered),
		ports.F("published", len(docs)),
		ports.F("failed", len(res.Failed())))
	return nil
}

// format isolates a single bad record so it cannot take the batch down.
func (c *PublishCycle) format(rec domain.RawRecord) (doc domain.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("format panic: %v", r)
		}
	}()
	return c.formatter.Format(rec.Timestamp, rec.State, rec.Reason), nil
}

func (c *PublishCycle) authCheck(err error) {
	if errs.IsAuth(err) && c.onAuthFailure != nil {
		c.onAuthFailure(err)
	}
}
