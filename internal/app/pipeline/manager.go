package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/enrich"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// State is the lifecycle position of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Deps are the collaborators a Manager is wired with.
type Deps struct {
	Bus        ports.EventBus
	States     ports.StateSource
	Registry   ports.Registry
	SystemInfo ports.SystemInfoProvider
	Gateway    ports.Gateway
	Queue      ports.RecordQueue
	Scheduler  ports.Scheduler
	Obs        ports.Observability

	// OnAuthFailure is told when the cluster rejects our credentials while
	// running. It must not block.
	OnAuthFailure func(error)
}

// Manager owns one pipeline: listener and poller feeding the queue, and the
// scheduled publish cycle draining it. A Manager runs once; to apply new
// settings build a new one.
type Manager struct {
	settings ports.Settings
	deps     Deps
	state    atomic.Int32

	filterer  *Filterer
	formatter *Formatter
	publisher *Publisher
	listener  *Listener
	poller    *Poller
	cycle     *PublishCycle

	mu            sync.Mutex
	cancelPublish func()
	static        domain.StaticFields
}

func NewManager(settings ports.Settings, deps Deps) (*Manager, error) {
	var missing []string
	if deps.Bus == nil {
		missing = append(missing, "event bus")
	}
	if deps.States == nil && settings.PollingEnabled {
		missing = append(missing, "state source")
	}
	if deps.Gateway == nil {
		missing = append(missing, "gateway")
	}
	if deps.Queue == nil {
		missing = append(missing, "queue")
	}
	if deps.Obs == nil {
		missing = append(missing, "observability")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline manager: missing %v: %w", missing, errs.ErrInvalidConfig)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewLoopScheduler(deps.Obs)
	}

	m := &Manager{settings: settings, deps: deps}
	m.filterer = NewFilterer(settings)
	m.formatter = NewFormatter(enrich.New(deps.Registry), deps.Obs, settings.DebugAttributeFiltering)
	m.publisher = NewPublisher(deps.Gateway, deps.Obs)
	m.listener = NewListener(deps.Bus, deps.Queue, deps.Obs)
	if settings.PollingEnabled {
		m.poller = NewPoller(deps.States, deps.Queue, deps.Scheduler, settings.PollingInterval, deps.Obs)
	}
	m.cycle = &PublishCycle{
		q:             deps.Queue,
		filterer:      m.filterer,
		formatter:     m.formatter,
		publisher:     m.publisher,
		gw:            deps.Gateway,
		obs:           deps.Obs,
		onAuthFailure: deps.OnAuthFailure,
	}
	return m, nil
}

func (m *Manager) State() State { return State(m.state.Load()) }

// Init brings the pipeline to RUNNING. On any error everything started so far
// is torn down and the Manager is back in UNINITIALIZED.
func (m *Manager) Init(ctx context.Context) (err error) {
	if !m.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return fmt.Errorf("pipeline manager in state %s: %w", m.State(), errs.ErrAlreadyInitialized)
	}
	obs := m.deps.Obs
	defer func() {
		if err != nil {
			m.teardown()
			m.state.CompareAndSwap(int32(StateInitializing), int32(StateUninitialized))
			obs.LogError("pipeline_init_failed", err)
		}
	}()

	if m.settings.PublishInterval <= 0 {
		return errs.WrapInvalid(fmt.Errorf("publish interval %s: %w", m.settings.PublishInterval, errs.ErrInvalidConfig), "manager", "Init")
	}

	static := BuildStaticFields(ctx, m.deps.SystemInfo, m.settings.Tags, obs)

	if m.settings.AllowsChange(domain.ChangeState) || m.settings.AllowsChange(domain.ChangeAttribute) {
		if err := m.listener.Start(); err != nil {
			return err
		}
	} else {
		obs.LogWarn("listener_disabled", ports.F("reason", "no change types configured"))
	}

	if m.poller != nil {
		if err := m.poller.Start(); err != nil {
			return err
		}
	} else {
		obs.LogInfo("polling_disabled")
	}

	m.formatter.SetStaticFields(static)

	m.mu.Lock()
	m.static = static
	m.cancelPublish = m.deps.Scheduler.Schedule("filter_format_publish", m.settings.PublishInterval, m.cycle.Run)
	m.mu.Unlock()

	if !m.state.CompareAndSwap(int32(StateInitializing), int32(StateRunning)) {
		// Stop won the race while we were starting up.
		return errs.ErrStopped
	}
	obs.LogInfo("pipeline_running",
		ports.F("publish_interval", m.settings.PublishInterval.String()),
		ports.F("polling", m.poller != nil))
	return nil
}

// Stop halts publishing, the listener and the poller. It is idempotent and
// may be called from any goroutine except the publish cycle itself.
func (m *Manager) Stop() {
	for {
		cur := m.state.Load()
		if State(cur) == StateStopped {
			return
		}
		if m.state.CompareAndSwap(cur, int32(StateStopped)) {
			break
		}
	}
	m.teardown()
	m.deps.Obs.LogInfo("pipeline_stopped")
}

func (m *Manager) teardown() {
	m.mu.Lock()
	cancel := m.cancelPublish
	m.cancelPublish = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.listener.Stop()
	if m.poller != nil {
		m.poller.Stop()
	}
}

// StaticFields returns the fields computed during Init.
func (m *Manager) StaticFields() domain.StaticFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.static
}

// RunCycle runs one publish cycle outside the schedule, for example to flush
// on shutdown.
func (m *Manager) RunCycle(ctx context.Context) error {
	if m.State() != StateRunning {
		return errors.New("pipeline manager is not running")
	}
	return m.cycle.Run(ctx)
}

// Formatter exposes the document formatter, mainly for tools that preview documents.
func (m *Manager) Formatter() *Formatter { return m.formatter }
