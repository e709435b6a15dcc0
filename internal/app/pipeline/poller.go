package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// Poller periodically snapshots every entity into the queue.
type Poller struct {
	src      ports.StateSource
	q        ports.RecordQueue
	obs      ports.Observability
	sched    ports.Scheduler
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancel  func()
	started bool
}

func NewPoller(src ports.StateSource, q ports.RecordQueue, sched ports.Scheduler, interval time.Duration, obs ports.Observability) *Poller {
	return &Poller{
		src:      src,
		q:        q,
		obs:      obs,
		sched:    sched,
		interval: interval,
		now:      time.Now,
	}
}

func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errs.ErrAlreadyInitialized
	}
	if p.interval <= 0 {
		return errs.WrapInvalid(errs.ErrInvalidConfig, "poller", "Start")
	}
	p.started = true
	p.cancel = p.sched.Schedule("state_poll", p.interval, p.Poll)
	return nil
}

// Poll runs one cycle. An error leaves the schedule untouched.
func (p *Poller) Poll(ctx context.Context) error {
	states, err := p.src.States(ctx)
	if err != nil {
		p.obs.IncCounter(ports.MetricPollCycleErrors, 1)
		return errs.WrapTransient(err, "poller", "Poll")
	}
	now := p.now().UTC()
	for _, st := range states {
		if st == nil {
			continue
		}
		p.q.Enqueue(domain.RawRecord{Timestamp: now, State: st, Reason: domain.ChangePolled})
	}
	p.obs.IncCounter(ports.MetricRecordsEnqueued, float64(len(states)))
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.started = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
