package hassflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

// ErrChannelGatewayClosed is returned when a channel gateway is written to after being closed.
var ErrChannelGatewayClosed = errors.New("hassflow: channel gateway closed")

// DocumentBatchHandler receives each published batch, in queue order.
type DocumentBatchHandler func(ctx context.Context, docs []Document) error

// NewCallbackGateway adapts a DocumentBatchHandler into a full Gateway so
// callers can receive documents without running a cluster. Every document
// in a batch the handler accepts is reported as created.
func NewCallbackGateway(name string, fn DocumentBatchHandler) Gateway {
	if name == "" {
		name = "callback"
	}
	return &callbackGateway{name: name, fn: fn}
}

// NewChannelGateway exposes batches via a channel; it returns the gateway,
// the read-only channel, and a close function that the caller should invoke
// during shutdown.
func NewChannelGateway(name string, buffer int) (Gateway, <-chan []Document, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Document, buffer)
	g := &channelGateway{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return g, ch, func() { g.close() }
}

type callbackGateway struct {
	name string
	fn   DocumentBatchHandler
}

func (g *callbackGateway) Ping(context.Context) error {
	if g.fn == nil {
		return errs.WrapInvalid(fmt.Errorf("callback gateway %q: nil handler", g.name), "gateway", "Ping")
	}
	return nil
}

func (g *callbackGateway) Bulk(ctx context.Context, actions []BulkAction) (BulkResult, error) {
	if g.fn == nil {
		return BulkResult{}, errs.WrapInvalid(fmt.Errorf("callback gateway %q: nil handler", g.name), "gateway", "Bulk")
	}
	if len(actions) == 0 {
		return BulkResult{}, nil
	}
	if err := g.fn(ctx, documentsOf(actions)); err != nil {
		return BulkResult{}, errs.WrapTransient(fmt.Errorf("callback gateway %q: %w", g.name, err), "gateway", "Bulk")
	}
	return createdResult(actions), nil
}

type channelGateway struct {
	name   string
	ch     chan []Document
	closed chan struct{}
	once   sync.Once

	// mu keeps close from closing ch under a pending send.
	mu sync.RWMutex
}

func (g *channelGateway) Ping(context.Context) error {
	select {
	case <-g.closed:
		return errs.WrapTransient(ErrChannelGatewayClosed, "gateway", "Ping")
	default:
		return nil
	}
}

func (g *channelGateway) Bulk(ctx context.Context, actions []BulkAction) (BulkResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	select {
	case <-g.closed:
		return BulkResult{}, ErrChannelGatewayClosed
	default:
	}

	if len(actions) == 0 {
		return BulkResult{}, nil
	}

	batch := documentsOf(actions)

	select {
	case <-g.closed:
		return BulkResult{}, ErrChannelGatewayClosed
	case <-ctx.Done():
		return BulkResult{}, ctx.Err()
	case g.ch <- batch:
		return createdResult(actions), nil
	}
}

func (g *channelGateway) close() {
	g.once.Do(func() {
		close(g.closed)
		g.mu.Lock()
		close(g.ch)
		g.mu.Unlock()
	})
}

func documentsOf(actions []BulkAction) []Document {
	out := make([]Document, 0, len(actions))
	for _, a := range actions {
		if a.Document != nil {
			out = append(out, *a.Document)
		}
	}
	return out
}

func createdResult(actions []BulkAction) BulkResult {
	items := make([]BulkItemResult, len(actions))
	for i, a := range actions {
		items[i] = BulkItemResult{Operation: a.Operation, Index: a.Index, Status: http.StatusCreated}
	}
	return BulkResult{Items: items}
}
