package homeassistant

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// registryUpdateEvents trigger a reload of the registry snapshot.
var registryUpdateEvents = []string{
	"entity_registry_updated",
	"device_registry_updated",
	"area_registry_updated",
	"floor_registry_updated",
	"label_registry_updated",
}

type registrySnapshot struct {
	entities map[string]domain.EntityEntry
	devices  map[string]domain.DeviceEntry
	areas    map[string]domain.AreaEntry
	floors   map[string]domain.FloorEntry
	labels   map[string]domain.LabelEntry
}

func (c *Client) Entity(id string) (domain.EntityEntry, bool) {
	e, ok := c.registry.Load().entities[id]
	return e, ok
}

func (c *Client) Device(id string) (domain.DeviceEntry, bool) {
	d, ok := c.registry.Load().devices[id]
	return d, ok
}

func (c *Client) Area(id string) (domain.AreaEntry, bool) {
	a, ok := c.registry.Load().areas[id]
	return a, ok
}

func (c *Client) Floor(id string) (domain.FloorEntry, bool) {
	f, ok := c.registry.Load().floors[id]
	return f, ok
}

func (c *Client) Label(id string) (domain.LabelEntry, bool) {
	l, ok := c.registry.Load().labels[id]
	return l, ok
}

// startRegistry loads the registries once and keeps them fresh for the life
// of loopCtx.
func (c *Client) startRegistry(ctx, loopCtx context.Context) error {
	if err := c.RefreshRegistry(ctx); err != nil {
		return err
	}
	for _, ev := range registryUpdateEvents {
		if _, err := c.subscribe(ctx, ev, func(json.RawMessage) { c.requestRefresh() }); err != nil {
			return err
		}
	}
	go c.refreshLoop(loopCtx)
	return nil
}

func (c *Client) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// refreshLoop coalesces update notifications and reloads at most once per
// RegistryRefreshInterval.
func (c *Client) refreshLoop(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(c.cfg.RegistryRefreshInterval), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refresh:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.RefreshRegistry(ctx); err != nil && ctx.Err() == nil {
			c.obs.LogWarn("registry_refresh_failed", ports.F("error", err.Error()))
		}
	}
}

// RefreshRegistry reloads every registry and swaps the snapshot in one step.
// Floors and labels are optional; older instances do not have them.
func (c *Client) RefreshRegistry(ctx context.Context) error {
	var (
		entities []domain.EntityEntry
		devices  []domain.DeviceEntry
		areas    []domain.AreaEntry
		floors   []domain.FloorEntry
		labels   []domain.LabelEntry
	)
	if err := c.call(ctx, map[string]any{"type": "config/entity_registry/list"}, &entities); err != nil {
		return err
	}
	if err := c.call(ctx, map[string]any{"type": "config/device_registry/list"}, &devices); err != nil {
		return err
	}
	if err := c.call(ctx, map[string]any{"type": "config/area_registry/list"}, &areas); err != nil {
		return err
	}
	if err := c.call(ctx, map[string]any{"type": "config/floor_registry/list"}, &floors); err != nil {
		c.obs.LogDebug("floor_registry_unavailable", ports.F("error", err.Error()))
		floors = nil
	}
	if err := c.call(ctx, map[string]any{"type": "config/label_registry/list"}, &labels); err != nil {
		c.obs.LogDebug("label_registry_unavailable", ports.F("error", err.Error()))
		labels = nil
	}

	snap := &registrySnapshot{
		entities: make(map[string]domain.EntityEntry, len(entities)),
		devices:  make(map[string]domain.DeviceEntry, len(devices)),
		areas:    make(map[string]domain.AreaEntry, len(areas)),
		floors:   make(map[string]domain.FloorEntry, len(floors)),
		labels:   make(map[string]domain.LabelEntry, len(labels)),
	}
	for _, e := range entities {
		snap.entities[e.EntityID] = e
	}
	for _, d := range devices {
		snap.devices[d.ID] = d
	}
	for _, a := range areas {
		snap.areas[a.ID] = a
	}
	for _, f := range floors {
		snap.floors[f.ID] = f
	}
	for _, l := range labels {
		snap.labels[l.ID] = l
	}
	c.registry.Store(snap)
	c.obs.LogDebug("registry_refreshed",
		ports.F("entities", len(entities)),
		ports.F("devices", len(devices)),
		ports.F("areas", len(areas)))
	return nil
}
