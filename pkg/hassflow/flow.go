package hassflow

import (
	"context"
	"fmt"

	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

// Flow reads a pipeline as three steps: Conf loads settings, StreamIN picks
// where entity states come from and StreamOUT picks where documents go.
// Anything not chosen falls back to the Runtime defaults.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption adjusts a Flow right after its config is loaded.
type FlowOption func(*Flow)

// StreamInOption selects the state source.
type StreamInOption func(*Flow)

// StreamOutOption selects the document sink.
type StreamOutOption func(*Flow)

// Conf starts a Flow from the YAML file at path.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from cfg.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", errs.ErrInvalidConfig)
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Flow) Config() *Config { return f.cfg }

// StreamIN applies source options and returns f for chaining.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT applies sink options and builds the Runtime.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the Runtime with opts and blocks until ctx ends or it fails.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions passes RuntimeOption values through, e.g. a logger,
// a custom RecordQueue or Observability.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) { f.add(opts...) }
}

// StreamInHost reads states from h instead of a Home Assistant connection.
func StreamInHost(h Host) StreamInOption {
	return func(f *Flow) {
		if h != nil {
			f.add(WithHost(h))
		}
	}
}

// StreamOutGateway publishes to g instead of the configured cluster.
func StreamOutGateway(g Gateway) StreamOutOption {
	return func(f *Flow) {
		if g != nil {
			f.add(WithGateway(g))
		}
	}
}

// StreamOutCallback hands every flushed batch to fn.
func StreamOutCallback(name string, fn DocumentBatchHandler) StreamOutOption {
	return func(f *Flow) { f.add(WithGateway(NewCallbackGateway(name, fn))) }
}

func (f *Flow) add(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
