package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

type logEntry struct {
	level string
	msg   string
	err   error
}

type mockObs struct {
	mu       sync.Mutex
	logs     []logEntry
	counters map[string]float64
	gauges   map[string]float64
	failures []domain.BulkItemResult
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (m *mockObs) add(level, msg string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logEntry{level: level, msg: msg, err: err})
}

func (m *mockObs) LogDebug(msg string, _ ...ports.Field)            { m.add("debug", msg, nil) }
func (m *mockObs) LogInfo(msg string, _ ...ports.Field)             { m.add("info", msg, nil) }
func (m *mockObs) LogWarn(msg string, _ ...ports.Field)             { m.add("warn", msg, nil) }
func (m *mockObs) LogError(msg string, err error, _ ...ports.Field) { m.add("error", msg, err) }
func (m *mockObs) LogCritical(msg string, err error, _ ...ports.Field) {
	m.add("critical", msg, err)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}

func (m *mockObs) ObserveLatency(string, float64) {}

func (m *mockObs) SetGauge(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = v
}

func (m *mockObs) RecordBulkFailure(item domain.BulkItemResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, item)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) count(level, msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.level == level && l.msg == msg {
			n++
		}
	}
	return n
}

type mockBus struct {
	mu           sync.Mutex
	handler      ports.StateChangedHandler
	eventType    string
	subscribeErr error
	unsubscribed int
}

func (b *mockBus) Subscribe(eventType string, h ports.StateChangedHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	b.eventType = eventType
	b.handler = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.unsubscribed++
		b.handler = nil
	}, nil
}

func (b *mockBus) fire(ev domain.StateChangedEvent) bool {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return false
	}
	h(ev)
	return true
}

type mockStates struct {
	states []*domain.EntityState
	err    error
	calls  int
}

func (s *mockStates) States(context.Context) ([]*domain.EntityState, error) {
	s.calls++
	return s.states, s.err
}

type mockSystemInfo struct {
	info domain.SystemInfo
	err  error
}

func (s *mockSystemInfo) SystemInfo(context.Context) (domain.SystemInfo, error) {
	return s.info, s.err
}

type mockGateway struct {
	mu      sync.Mutex
	pingErr error
	bulkErr error
	result  func([]domain.BulkAction) domain.BulkResult
	batches [][]domain.BulkAction
}

func (g *mockGateway) Ping(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pingErr
}

func (g *mockGateway) Bulk(_ context.Context, actions []domain.BulkAction) (domain.BulkResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bulkErr != nil {
		return domain.BulkResult{}, g.bulkErr
	}
	g.batches = append(g.batches, actions)
	if g.result != nil {
		return g.result(actions), nil
	}
	items := make([]domain.BulkItemResult, len(actions))
	for i, a := range actions {
		items[i] = domain.BulkItemResult{Operation: a.Operation, Index: a.Index, Status: 201}
	}
	return domain.BulkResult{Items: items}, nil
}

func (g *mockGateway) setBulkErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bulkErr = err
}

func (g *mockGateway) allActions() []domain.BulkAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.BulkAction
	for _, b := range g.batches {
		out = append(out, b...)
	}
	return out
}

type scheduledTask struct {
	name      string
	interval  time.Duration
	fn        func(context.Context) error
	cancelled int
}

// manualScheduler records schedules; tests trigger runs explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks map[string]*scheduledTask
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: map[string]*scheduledTask{}}
}

func (s *manualScheduler) Schedule(name string, interval time.Duration, fn func(context.Context) error) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &scheduledTask{name: name, interval: interval, fn: fn}
	s.tasks[name] = task
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		task.cancelled++
	}
}

func (s *manualScheduler) task(name string) *scheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[name]
}

func (s *manualScheduler) run(name string) error {
	t := s.task(name)
	if t == nil {
		return errors.New("task not scheduled: " + name)
	}
	return t.fn(context.Background())
}

func entity(id, state string, attrs map[string]any) *domain.EntityState {
	return &domain.EntityState{
		EntityID:    id,
		State:       state,
		Attributes:  attrs,
		LastUpdated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}
