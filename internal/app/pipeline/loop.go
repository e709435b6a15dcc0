package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// LoopScheduler runs each scheduled function on its own goroutine: once right
// away, then every interval. A failing or panicking run is logged and the
// next tick runs as usual.
type LoopScheduler struct {
	obs ports.Observability
}

func NewLoopScheduler(obs ports.Observability) *LoopScheduler {
	return &LoopScheduler{obs: obs}
}

// Schedule starts the loop. The returned cancel stops it and waits for a run
// in progress to return, so it must not be called from inside fn.
func (s *LoopScheduler) Schedule(name string, interval time.Duration, fn func(ctx context.Context) error) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			s.runOnce(ctx, name, fn)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (s *LoopScheduler) runOnce(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.obs.LogError("loop_panic", fmt.Errorf("%v", r), ports.F("loop", name))
		}
	}()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.obs.LogError("loop_run_failed", err, ports.F("loop", name))
	}
}

var _ ports.Scheduler = (*LoopScheduler)(nil)
