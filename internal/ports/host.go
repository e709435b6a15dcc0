package ports

import (
	"context"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

// EventStateChanged is the host bus event carrying entity state transitions.
const EventStateChanged = "state_changed"

// StateChangedHandler runs on the host's dispatch path and must not block.
type StateChangedHandler func(domain.StateChangedEvent)

// EventBus delivers host notifications. The returned function cancels the subscription.
type EventBus interface {
	Subscribe(eventType string, handler StateChangedHandler) (unsubscribe func(), err error)
}

// StateSource lists every entity the host currently knows about.
type StateSource interface {
	States(ctx context.Context) ([]*domain.EntityState, error)
}

// Registry is a read-only view over the host's entity/device/area/floor/label registries.
type Registry interface {
	Entity(entityID string) (domain.EntityEntry, bool)
	Device(deviceID string) (domain.DeviceEntry, bool)
	Area(areaID string) (domain.AreaEntry, bool)
	Floor(floorID string) (domain.FloorEntry, bool)
	Label(labelID string) (domain.LabelEntry, bool)
}

type SystemInfoProvider interface {
	SystemInfo(ctx context.Context) (domain.SystemInfo, error)
}
