package hassflow

import (
	base "github.com/strawgate/homeassistant-elasticsearch/pkg/hassflow"
)

// Re-exported errors for convenience.
var (
	ErrChannelGatewayClosed = base.ErrChannelGatewayClosed
)

// Type aliases so consumers can import github.com/strawgate/homeassistant-elasticsearch directly.
type (
	Config               = base.Config
	HomeAssistantConfig  = base.HomeAssistantConfig
	ElasticsearchConfig  = base.ElasticsearchConfig
	PipelineConfig       = base.PipelineConfig
	MetricsConfig        = base.MetricsConfig
	LogConfig            = base.LogConfig
	Flow                 = base.Flow
	FlowOption           = base.FlowOption
	StreamInOption       = base.StreamInOption
	StreamOutOption      = base.StreamOutOption
	Runtime              = base.Runtime
	RuntimeOption        = base.RuntimeOption
	Host                 = base.Host
	ExternalHost         = base.ExternalHost
	Gateway              = base.Gateway
	DocumentBatchHandler = base.DocumentBatchHandler
	Document             = base.Document
	EntityState          = base.EntityState
	StateChangedEvent    = base.StateChangedEvent
	SystemInfo           = base.SystemInfo
	RecordQueue          = base.RecordQueue
	Observability        = base.Observability
	Field                = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInHost(h Host) StreamInOption {
	return base.StreamInHost(h)
}

func StreamOutGateway(g Gateway) StreamOutOption {
	return base.StreamOutGateway(g)
}

func StreamOutCallback(name string, fn DocumentBatchHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithHost(h Host) RuntimeOption {
	return base.WithHost(h)
}

func WithGateway(g Gateway) RuntimeOption {
	return base.WithGateway(g)
}

func WithRecordQueue(q RecordQueue) RuntimeOption {
	return base.WithRecordQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Gateway adapters.
func NewCallbackGateway(name string, fn DocumentBatchHandler) Gateway {
	return base.NewCallbackGateway(name, fn)
}

func NewChannelGateway(name string, buffer int) (Gateway, <-chan []Document, func()) {
	return base.NewChannelGateway(name, buffer)
}

// External host.
func NewExternalHost(info SystemInfo) *ExternalHost {
	return base.NewExternalHost(info)
}
