package hassflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/elasticsearch"
	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/homeassistant"
	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/observability"
	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/queue"
	"github.com/strawgate/homeassistant-elasticsearch/internal/app/datastream"
	"github.com/strawgate/homeassistant-elasticsearch/internal/app/pipeline"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const (
	defaultReconnectInterval = 30 * time.Second
	shutdownFlushTimeout     = 10 * time.Second
	queueHint                = 1024
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	host              Host
	gateway           Gateway
	queue             RecordQueue
	observability     Observability
	logger            *zap.Logger
	metrics           *prometheus.Registry
	reconnectInterval time.Duration
}

// WithHost replaces the Home Assistant WebSocket connection, e.g. with an ExternalHost.
func WithHost(h Host) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.host = h
	}
}

// WithGateway sends documents somewhere other than the configured cluster.
// The index template is only managed when g also implements IndexLifecycle.
func WithGateway(g Gateway) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.gateway = g
	}
}

// WithRecordQueue swaps the in-memory queue.
func WithRecordQueue(q RecordQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the zap logger used by the default observability backend.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithMetricsRegistry registers the pipeline metrics on reg instead of a
// registry private to the runtime.
func WithMetricsRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.metrics = reg
	}
}

// WithReconnectInterval sets the minimum delay between two connection attempts.
func WithReconnectInterval(d time.Duration) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.reconnectInterval = d
	}
}

// Runtime keeps one pipeline running against Home Assistant and the cluster,
// rebuilding it whenever the host connection drops or the cluster rejects
// the credentials. The record queue outlives each rebuild.
type Runtime struct {
	cfg      *Config
	settings Settings
	obs      Observability
	metrics  *prometheus.Registry
	queue    RecordQueue
	limiter  *rate.Limiter

	host    Host
	gateway Gateway

	mu         sync.Mutex
	manager    *pipeline.Manager
	cancel     context.CancelFunc
	done       chan struct{}
	metricsSrv *http.Server
}

// NewRuntime validates cfg and bootstraps the default adapters (Home
// Assistant WebSocket host, Elasticsearch gateway, in-memory queue,
// Prometheus observability). RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", errs.ErrInvalidConfig)
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	if settings.PublishInterval <= 0 {
		return nil, fmt.Errorf("pipeline.publish_interval must be positive: %w", errs.ErrInvalidConfig)
	}
	if overrides.host == nil {
		if err := cfg.HomeAssistant.Validate(); err != nil {
			return nil, err
		}
	}
	if overrides.gateway == nil && cfg.Elasticsearch.URL == "" {
		return nil, fmt.Errorf("elasticsearch.url is required: %w", errs.ErrInvalidConfig)
	}

	reg := overrides.metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	obs := overrides.observability
	if obs == nil {
		logger := overrides.logger
		if logger == nil {
			logger, err = observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
			}
		}
		obs = observability.NewPromObs(logger, reg)
	}

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(queueHint)
	}

	interval := overrides.reconnectInterval
	if interval <= 0 {
		interval = defaultReconnectInterval
	}

	return &Runtime{
		cfg:      cfg,
		settings: settings,
		obs:      obs,
		metrics:  reg,
		queue:    q,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		host:     overrides.host,
		gateway:  overrides.gateway,
	}, nil
}

// Run blocks until ctx is cancelled or a failure that retrying cannot fix
// (unsupported cluster, missing privileges, invalid configuration). Lost
// connections and rejected credentials rebuild the pipeline, paced by the
// reconnect interval.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return errors.New("runtime is nil")
	}

	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("runtime: %w", errs.ErrAlreadyInitialized)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()
	defer close(done)
	defer cancel()

	r.startMetrics()
	defer r.stopMetrics()

	gaugeStop := make(chan struct{})
	go r.recordQueueGauge(gaugeStop, time.Second)
	defer close(gaugeStop)

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}
		err := r.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch errs.ClassOf(err) {
		case errs.Fatal, errs.Invalid:
			r.obs.LogCritical("runtime_stopped", err)
			return err
		default:
			r.obs.LogWarn("pipeline_restarting",
				ports.F("reason", errString(err)),
				ports.F("class", errs.ClassOf(err).String()))
		}
	}
}

// Shutdown cancels a running Run and waits for it to flush and return.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a pipeline is currently publishing.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager != nil && r.manager.State() == pipeline.StateRunning
}

// Queue exposes the record queue shared by every pipeline build.
func (r *Runtime) Queue() RecordQueue { return r.queue }

// Observability exposes the active observability backend.
func (r *Runtime) Observability() Observability { return r.obs }

// MetricsHandler serves the pipeline metrics in the Prometheus text format.
func (r *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{})
}

// hostSession is implemented by hosts whose connection can drop.
type hostSession interface {
	Done() <-chan struct{}
	Err() error
}

// runSession builds one pipeline and returns when it has to be rebuilt.
func (r *Runtime) runSession(ctx context.Context) error {
	gw, err := r.connectGateway(ctx)
	if err != nil {
		return err
	}
	if lc, ok := gw.(ports.IndexLifecycle); ok {
		if err := datastream.NewManager(lc, r.obs).Init(ctx); err != nil {
			return err
		}
	}

	host, closeHost, err := r.connectHost(ctx)
	if err != nil {
		return err
	}
	defer closeHost()

	authFailed := make(chan error, 1)
	mgr, err := pipeline.NewManager(r.settings, pipeline.Deps{
		Bus:        host,
		States:     host,
		Registry:   host,
		SystemInfo: host,
		Gateway:    gw,
		Queue:      r.queue,
		Obs:        r.obs,
		OnAuthFailure: func(err error) {
			select {
			case authFailed <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	if err := mgr.Init(ctx); err != nil {
		return err
	}
	r.setManager(mgr)
	defer r.setManager(nil)

	var lost <-chan struct{}
	sess, _ := host.(hostSession)
	if sess != nil {
		lost = sess.Done()
	}

	select {
	case <-ctx.Done():
		r.flush(mgr)
		mgr.Stop()
		return ctx.Err()
	case <-lost:
		mgr.Stop()
		return errs.WrapTransient(sess.Err(), "runtime", "host")
	case err := <-authFailed:
		mgr.Stop()
		return err
	}
}

func (r *Runtime) connectGateway(ctx context.Context) (Gateway, error) {
	if r.gateway != nil {
		return r.gateway, nil
	}
	gw, err := elasticsearch.New(r.cfg.GatewayConfig())
	if err != nil {
		return nil, err
	}
	if err := gw.Init(ctx); err != nil {
		return nil, err
	}
	caps := gw.Capabilities()
	r.obs.LogInfo("cluster_connected",
		ports.F("version", caps.Version.Number),
		ports.F("flavor", caps.Version.BuildFlavor),
		ports.F("serverless", caps.Serverless))
	return gw, nil
}

func (r *Runtime) connectHost(ctx context.Context) (Host, func(), error) {
	if r.host != nil {
		return r.host, func() {}, nil
	}
	client, err := homeassistant.Dial(ctx, r.cfg.HostConfig(), r.obs)
	if err != nil {
		return nil, nil, err
	}
	r.obs.LogInfo("host_connected", ports.F("url", r.cfg.HomeAssistant.URL))
	return client, client.Close, nil
}

// flush publishes whatever is still queued before the pipeline stops.
func (r *Runtime) flush(mgr *pipeline.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := mgr.RunCycle(ctx); err != nil {
		r.obs.LogWarn("shutdown_flush_failed", ports.F("error", err.Error()))
	}
}

func (r *Runtime) setManager(m *pipeline.Manager) {
	r.mu.Lock()
	r.manager = m
	r.mu.Unlock()
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !r.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not running"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.mu.Lock()
	r.metricsSrv = srv
	r.mu.Unlock()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err, ports.F("addr", srv.Addr))
		}
	}()
}

func (r *Runtime) stopMetrics() {
	r.mu.Lock()
	srv := r.metricsSrv
	r.metricsSrv = nil
	r.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		r.obs.LogError("metrics_server_shutdown", err)
	}
}

func (r *Runtime) recordQueueGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricQueueLength, float64(r.queue.Len()))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "session ended"
	}
	return err.Error()
}
