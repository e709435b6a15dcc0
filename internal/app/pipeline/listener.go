package pipeline

import (
	"sync"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// Listener turns host state_changed notifications into queued raw records.
type Listener struct {
	bus ports.EventBus
	q   ports.RecordQueue
	obs ports.Observability

	mu          sync.Mutex
	unsubscribe func()
	started     bool
}

func NewListener(bus ports.EventBus, q ports.RecordQueue, obs ports.Observability) *Listener {
	return &Listener{bus: bus, q: q, obs: obs}
}

// Start subscribes to the bus. It fails if already subscribed.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errs.ErrAlreadyInitialized
	}
	unsub, err := l.bus.Subscribe(ports.EventStateChanged, l.handle)
	if err != nil {
		return errs.WrapTransient(err, "listener", "Start")
	}
	l.started = true
	l.unsubscribe = unsub
	return nil
}

// Stop cancels the subscription. Calling it again does nothing.
func (l *Listener) Stop() {
	l.mu.Lock()
	unsub := l.unsubscribe
	l.unsubscribe = nil
	l.started = false
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// handle runs on the host's dispatch path: classify, enqueue, return.
func (l *Listener) handle(ev domain.StateChangedEvent) {
	if ev.NewState == nil {
		return
	}
	reason := domain.ChangeAttribute
	if ev.OldState == nil || ev.OldState.State != ev.NewState.State {
		reason = domain.ChangeState
	}
	ts := ev.TimeFired
	if ts.IsZero() {
		ts = ev.NewState.LastUpdated
	}
	l.q.Enqueue(domain.RawRecord{Timestamp: ts, State: ev.NewState, Reason: reason})
	l.obs.IncCounter(ports.MetricRecordsEnqueued, 1)
}
