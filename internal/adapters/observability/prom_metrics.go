package observability

import (
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// PromObs logs through zap and records pipeline metrics in Prometheus.
type PromObs struct {
	log *zap.Logger

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pipeline metrics on reg. A nil logger discards
// logs and a nil registerer means prometheus.DefaultRegisterer.
func NewPromObs(logger *zap.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counters := map[string]prometheus.Counter{
		ports.MetricRecordsEnqueued:     counter(ports.MetricRecordsEnqueued, "Raw records captured by the listener and poller."),
		ports.MetricRecordsFiltered:     counter(ports.MetricRecordsFiltered, "Raw records rejected by the filterer."),
		ports.MetricDocumentsFormatted:  counter(ports.MetricDocumentsFormatted, "Documents produced by the formatter."),
		ports.MetricDocumentsPublished:  counter(ports.MetricDocumentsPublished, "Documents accepted by the cluster."),
		ports.MetricDocumentsFailed:     counter(ports.MetricDocumentsFailed, "Documents rejected by the cluster."),
		ports.MetricPublishCycles:       counter(ports.MetricPublishCycles, "Publish cycles run."),
		ports.MetricPublishCycleErrors:  counter(ports.MetricPublishCycleErrors, "Publish cycles that ended in an error."),
		ports.MetricPollCycleErrors:     counter(ports.MetricPollCycleErrors, "Poll cycles that ended in an error."),
		ports.MetricAttributeCollisions: counter(ports.MetricAttributeCollisions, "Attribute keys that collided after normalization."),
		ports.MetricAttributesDropped:   counter(ports.MetricAttributesDropped, "Attributes dropped while building documents."),
	}
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricQueueLength,
		Help: "Raw records waiting for the next publish cycle.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricPublishLatency,
		Help:    "Duration of the bulk request in a publish cycle.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	collectors := []prometheus.Collector{queueGauge, latency}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	reg.MustRegister(collectors...)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges: map[string]prometheus.Gauge{
			ports.MetricQueueLength: queueGauge,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricPublishLatency: latency,
		},
	}
}

// Logger exposes the underlying zap logger for adapters that log directly.
func (p *PromObs) Logger() *zap.Logger { return p.log }

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log.Debug(msg, zapFields(nil, fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(nil, fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, zapFields(nil, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, zapFields(err, fields)...)
}

// LogCritical is reserved for failures that stop the pipeline from running.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(err, fields), zap.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordBulkFailure(item domain.BulkItemResult) {
	p.IncCounter(ports.MetricDocumentsFailed, 1)
	p.log.Error("bulk_item_failed",
		zap.String("operation", item.Operation),
		zap.String("index", item.Index),
		zap.Int("status", item.Status),
		zap.String("error_type", item.ErrorType),
		zap.String("reason", item.ErrorReason),
	)
}

func zapFields(err error, fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if err != nil {
		out = append(out, zap.Error(err))
	}
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
