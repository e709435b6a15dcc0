package ports

import (
	"context"
	"time"
)

// Scheduler runs fn every interval until the returned cancel function is
// called. Cancel is idempotent and safe to call from any goroutine.
type Scheduler interface {
	Schedule(name string, interval time.Duration, fn func(ctx context.Context) error) (cancel func())
}
