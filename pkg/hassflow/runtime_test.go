package hassflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/queue"
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

func testConfig(publish time.Duration) *Config {
	return &Config{
		Pipeline: PipelineConfig{
			PublishInterval: publish,
			ChangeTypes:     []string{"STATE", "ATTRIBUTE"},
		},
	}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// recordingGateway accepts every document after failing the first authFailures pings.
type recordingGateway struct {
	mu           sync.Mutex
	docs         []Document
	pings        atomic.Int32
	authFailures int32
}

func (g *recordingGateway) Ping(context.Context) error {
	if g.pings.Add(1) <= g.authFailures {
		return errs.WrapAuth(errs.ErrAuthFailed, "test", "Ping")
	}
	return nil
}

func (g *recordingGateway) Bulk(_ context.Context, actions []BulkAction) (BulkResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range actions {
		g.docs = append(g.docs, *a.Document)
	}
	return createdResult(actions), nil
}

func (g *recordingGateway) documents() []Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Document(nil), g.docs...)
}

// fatalCluster fails the template lookup the way an unsupported cluster would.
type fatalCluster struct{ recordingGateway }

func (c *fatalCluster) Capabilities() domain.Capabilities { return domain.Capabilities{} }

func (c *fatalCluster) GetIndexTemplate(context.Context, string) (domain.IndexTemplateInfo, bool, error) {
	return domain.IndexTemplateInfo{}, false, errs.WrapFatal(errs.ErrUnsupportedVersion, "test", "GetIndexTemplate")
}

func (c *fatalCluster) PutIndexTemplate(context.Context, string, []byte) error { return nil }

func (c *fatalCluster) GetDatastreams(context.Context, string) ([]string, error) { return nil, nil }

func (c *fatalCluster) RolloverDatastream(context.Context, string) error { return nil }

// droppingHost is an ExternalHost whose connection can be cut.
type droppingHost struct {
	*ExternalHost
	done chan struct{}
}

func (h *droppingHost) Done() <-chan struct{} { return h.done }
func (h *droppingHost) Err() error            { return errs.ErrConnectionLost }

func startRuntime(t *testing.T, rt *Runtime) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return errCh
}

func TestNewRuntimeValidation(t *testing.T) {
	_, err := NewRuntime(nil)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewRuntime(testConfig(time.Second), WithGateway(&recordingGateway{}))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig, "home assistant section is required without a host")

	_, err = NewRuntime(testConfig(time.Second), WithHost(NewExternalHost(SystemInfo{})))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig, "elasticsearch url is required without a gateway")

	_, err = NewRuntime(testConfig(0), WithHost(NewExternalHost(SystemInfo{})), WithGateway(&recordingGateway{}))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	cfg := testConfig(time.Second)
	cfg.Pipeline.ChangeTypes = []string{"SOMETIMES"}
	_, err = NewRuntime(cfg, WithHost(NewExternalHost(SystemInfo{})), WithGateway(&recordingGateway{}))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	host := NewExternalHost(SystemInfo{})
	gw := &recordingGateway{}
	q := queue.NewMemQueue(0)
	logger, _ := observedLogger()

	rt, err := NewRuntime(testConfig(time.Second),
		WithHost(host),
		WithGateway(gw),
		WithRecordQueue(q),
		WithLogger(logger),
	)
	require.NoError(t, err)

	assert.Same(t, host, rt.host.(*ExternalHost))
	assert.Same(t, gw, rt.gateway.(*recordingGateway))
	assert.Same(t, q, rt.Queue().(*queue.MemQueue))
	assert.False(t, rt.Running())
}

func TestRuntimePublishesStateChanges(t *testing.T) {
	host := NewExternalHost(SystemInfo{Version: "2024.5.0"})
	gw, ch, closeFn := NewChannelGateway("test", 4)
	defer closeFn()
	logger, _ := observedLogger()

	rt, err := NewRuntime(testConfig(20*time.Millisecond), WithHost(host), WithGateway(gw), WithLogger(logger))
	require.NoError(t, err)
	startRuntime(t, rt)

	require.Eventually(t, rt.Running, 2*time.Second, 5*time.Millisecond)

	_, err = host.SetState("sensor.living_room_temp", "21.5", map[string]any{"unit_of_measurement": "°C"})
	require.NoError(t, err)

	select {
	case batch := <-ch:
		require.Len(t, batch, 1)
		doc := batch[0]
		assert.Equal(t, "sensor.living_room_temp", doc.Hass.Entity.ID)
		assert.Equal(t, "State change", doc.Event.Action)
		assert.Equal(t, "homeassistant.sensor", doc.DataStream.Dataset)
		require.NotNil(t, doc.Agent)
		assert.Equal(t, "2024.5.0", doc.Agent.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published batch")
	}
}

func TestRuntimeFlushesOnShutdown(t *testing.T) {
	host := NewExternalHost(SystemInfo{})
	gw := &recordingGateway{}
	logger, _ := observedLogger()

	rt, err := NewRuntime(testConfig(time.Hour), WithHost(host), WithGateway(gw), WithLogger(logger))
	require.NoError(t, err)
	errCh := startRuntime(t, rt)
	require.Eventually(t, rt.Running, 2*time.Second, 5*time.Millisecond)

	_, err = host.SetState("switch.fan", "on", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Shutdown(ctx))
	require.NoError(t, <-errCh)

	docs := gw.documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "switch.fan", docs[0].Hass.Entity.ID)
	assert.Zero(t, rt.Queue().Len())
	assert.False(t, rt.Running())
}

func TestRuntimeRebuildsAfterAuthFailure(t *testing.T) {
	host := NewExternalHost(SystemInfo{})
	gw := &recordingGateway{authFailures: 1}
	logger, logs := observedLogger()

	rt, err := NewRuntime(testConfig(20*time.Millisecond),
		WithHost(host), WithGateway(gw), WithLogger(logger),
		WithReconnectInterval(10*time.Millisecond))
	require.NoError(t, err)
	startRuntime(t, rt)

	require.Eventually(t, func() bool {
		for _, e := range logs.FilterMessage("pipeline_restarting").All() {
			if e.ContextMap()["class"] == "auth" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, rt.Running, 2*time.Second, 5*time.Millisecond)

	_, err = host.SetState("light.porch", "on", nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(gw.documents()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRuntimeRebuildsAfterHostLoss(t *testing.T) {
	host := &droppingHost{ExternalHost: NewExternalHost(SystemInfo{}), done: make(chan struct{})}
	logger, logs := observedLogger()

	rt, err := NewRuntime(testConfig(time.Hour),
		WithHost(host), WithGateway(&recordingGateway{}), WithLogger(logger),
		WithReconnectInterval(10*time.Millisecond))
	require.NoError(t, err)
	startRuntime(t, rt)
	require.Eventually(t, rt.Running, 2*time.Second, 5*time.Millisecond)

	close(host.done)
	require.Eventually(t, func() bool {
		for _, e := range logs.FilterMessage("pipeline_restarting").All() {
			if reason, _ := e.ContextMap()["reason"].(string); strings.Contains(reason, "connection lost") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRuntimeStopsOnFatalError(t *testing.T) {
	logger, logs := observedLogger()
	rt, err := NewRuntime(testConfig(time.Second),
		WithHost(NewExternalHost(SystemInfo{})), WithGateway(&fatalCluster{}), WithLogger(logger))
	require.NoError(t, err)

	errCh := startRuntime(t, rt)
	select {
	case err := <-errCh:
		assert.True(t, errs.IsFatal(err), "got %v", err)
		assert.True(t, errors.Is(err, errs.ErrUnsupportedVersion))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on a fatal error")
	}
	assert.Equal(t, 1, logs.FilterMessage("runtime_stopped").Len())
}

func TestRuntimeRunTwice(t *testing.T) {
	logger, _ := observedLogger()
	rt, err := NewRuntime(testConfig(time.Second),
		WithHost(NewExternalHost(SystemInfo{})), WithGateway(&recordingGateway{}), WithLogger(logger))
	require.NoError(t, err)
	startRuntime(t, rt)
	require.Eventually(t, rt.Running, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, rt.Run(context.Background()), errs.ErrAlreadyInitialized)
}

func TestRuntimeMetricsHandler(t *testing.T) {
	logger, _ := observedLogger()
	rt, err := NewRuntime(testConfig(time.Second),
		WithHost(NewExternalHost(SystemInfo{})), WithGateway(&recordingGateway{}), WithLogger(logger))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rt.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hassflow_publish_cycles_total")
	assert.Contains(t, rec.Body.String(), "hassflow_queue_length")
}
