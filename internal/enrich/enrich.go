// Package enrich attaches registry metadata (device, area, floor, labels) to entities.
package enrich

import (
	"sort"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// Enricher reads the host registries. Lookups never write to them and never fail.
type Enricher struct {
	reg ports.Registry
}

// New returns an Enricher. A nil registry yields empty lookups.
func New(reg ports.Registry) *Enricher {
	return &Enricher{reg: reg}
}

// Lookup returns what the registries know about entityID. Nothing is cached;
// registry data can change between calls.
func (e *Enricher) Lookup(entityID string) domain.EnrichedEntity {
	if e == nil || e.reg == nil {
		return domain.EnrichedEntity{}
	}
	entry, ok := e.reg.Entity(entityID)
	if !ok {
		return domain.EnrichedEntity{}
	}

	out := domain.EnrichedEntity{
		Name:     firstNonEmpty(entry.Name, entry.OriginalName),
		Platform: entry.Platform,
		Labels:   e.labelNames(entry.Labels),
	}

	var device *domain.DeviceEntry
	if entry.DeviceID != "" {
		if d, ok := e.reg.Device(entry.DeviceID); ok {
			device = &d
			out.Device = &domain.DeviceInfo{
				ID:     d.ID,
				Name:   d.DisplayName(),
				Labels: e.labelNames(d.Labels),
				Area:   e.area(d.AreaID),
			}
		}
	}

	// An entity without its own area inherits its device's area.
	areaID := entry.AreaID
	if areaID == "" && device != nil {
		areaID = device.AreaID
	}
	out.Area = e.area(areaID)

	return out
}

func (e *Enricher) area(id string) *domain.AreaInfo {
	if id == "" {
		return nil
	}
	a, ok := e.reg.Area(id)
	if !ok {
		return nil
	}
	info := &domain.AreaInfo{ID: a.ID, Name: a.Name}
	if a.FloorID != "" {
		if f, ok := e.reg.Floor(a.FloorID); ok {
			info.Floor = &domain.FloorInfo{ID: f.ID, Name: f.Name}
		}
	}
	return info
}

func (e *Enricher) labelNames(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if l, ok := e.reg.Label(id); ok && l.Name != "" {
			out = append(out, l.Name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
