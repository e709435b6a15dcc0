package hassflow

import (
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// EntityState is an immutable snapshot of one entity as reported by the host.
type EntityState = domain.EntityState

// StateChangedEvent is the payload delivered to state_changed subscribers.
type StateChangedEvent = domain.StateChangedEvent

// ChangeReason classifies why a record was captured (STATE, ATTRIBUTE, POLLED).
type ChangeReason = domain.ChangeReason

const (
	ChangeState     = domain.ChangeState
	ChangeAttribute = domain.ChangeAttribute
	ChangePolled    = domain.ChangePolled
)

// Document is one record as written to the cluster.
type Document = domain.Document

type (
	BulkAction     = domain.BulkAction
	BulkResult     = domain.BulkResult
	BulkItemResult = domain.BulkItemResult
	SystemInfo     = domain.SystemInfo
)

// Gateway is the write path into the cluster. Implementations that also
// satisfy IndexLifecycle get the index template installed at startup.
type Gateway = ports.Gateway

// IndexLifecycle manages index templates and datastreams.
type IndexLifecycle = ports.IndexLifecycle

// EventBus delivers state_changed notifications from the host.
type EventBus = ports.EventBus

// StateSource lists the current state of every entity, used by the poller.
type StateSource = ports.StateSource

// Registry is a read-only view of the host's entity/device/area/floor/label registries.
type Registry = ports.Registry

// SystemInfoProvider describes the host installation for the static document fields.
type SystemInfoProvider = ports.SystemInfoProvider

// StateChangedHandler runs on the host's dispatch path and must not block.
type StateChangedHandler = ports.StateChangedHandler

// RecordQueue buffers captured records between publish cycles.
type RecordQueue = ports.RecordQueue

// Observability emits logs and metrics about the pipeline.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Settings is the immutable pipeline configuration snapshot.
type Settings = ports.Settings

// Host bundles everything the pipeline reads from Home Assistant. The
// WebSocket client and ExternalHost both satisfy it.
type Host interface {
	EventBus
	StateSource
	Registry
	SystemInfoProvider
}

// EventStateChanged is the only event type the pipeline subscribes to.
const EventStateChanged = ports.EventStateChanged

type (
	EntityEntry = domain.EntityEntry
	DeviceEntry = domain.DeviceEntry
	AreaEntry   = domain.AreaEntry
	FloorEntry  = domain.FloorEntry
	LabelEntry  = domain.LabelEntry
)
