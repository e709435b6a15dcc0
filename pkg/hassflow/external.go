package hassflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

// ExternalHost is an in-process Host for programs that own their entity
// states instead of reading them from Home Assistant: simulators, bridges
// from other home automation systems, tests. Handlers run synchronously on
// the goroutine calling SetState or RemoveState.
type ExternalHost struct {
	mu       sync.RWMutex
	states   map[string]*EntityState
	handlers map[int]StateChangedHandler
	nextID   int
	info     SystemInfo

	entities map[string]EntityEntry
	devices  map[string]DeviceEntry
	areas    map[string]AreaEntry
	floors   map[string]FloorEntry
	labels   map[string]LabelEntry

	now func() time.Time
}

// NewExternalHost returns an empty host reporting info as its installation.
func NewExternalHost(info SystemInfo) *ExternalHost {
	return &ExternalHost{
		states:   make(map[string]*EntityState),
		handlers: make(map[int]StateChangedHandler),
		info:     info,
		entities: make(map[string]EntityEntry),
		devices:  make(map[string]DeviceEntry),
		areas:    make(map[string]AreaEntry),
		floors:   make(map[string]FloorEntry),
		labels:   make(map[string]LabelEntry),
		now:      time.Now,
	}
}

// SetState records a new state for entityID and notifies subscribers.
// LastChanged only moves when the state string changes.
func (h *ExternalHost) SetState(entityID, state string, attrs map[string]any) (*EntityState, error) {
	if !validEntityID(entityID) {
		return nil, errs.WrapInvalid(fmt.Errorf("malformed entity id %q", entityID), "external_host", "SetState")
	}
	now := h.now().UTC()

	h.mu.Lock()
	old := h.states[entityID]
	next := &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  domain.CloneAttributes(attrs),
		LastChanged: now,
		LastUpdated: now,
	}
	if old != nil && old.State == state {
		next.LastChanged = old.LastChanged
	}
	h.states[entityID] = next
	handlers := h.handlersLocked()
	h.mu.Unlock()

	h.dispatch(handlers, StateChangedEvent{
		EntityID:  entityID,
		NewState:  next.Clone(),
		OldState:  old.Clone(),
		TimeFired: now,
	})
	return next.Clone(), nil
}

// RemoveState forgets entityID and notifies subscribers with a nil NewState.
// It reports whether the entity existed.
func (h *ExternalHost) RemoveState(entityID string) bool {
	h.mu.Lock()
	old, ok := h.states[entityID]
	delete(h.states, entityID)
	handlers := h.handlersLocked()
	h.mu.Unlock()

	if !ok {
		return false
	}
	h.dispatch(handlers, StateChangedEvent{
		EntityID:  entityID,
		OldState:  old.Clone(),
		TimeFired: h.now().UTC(),
	})
	return true
}

func (h *ExternalHost) Subscribe(eventType string, handler StateChangedHandler) (func(), error) {
	if eventType != EventStateChanged {
		return nil, errs.WrapInvalid(fmt.Errorf("unsupported event type %q", eventType), "external_host", "Subscribe")
	}
	if handler == nil {
		return nil, errs.WrapInvalid(fmt.Errorf("nil handler"), "external_host", "Subscribe")
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}, nil
}

// States lists every known entity ordered by entity id.
func (h *ExternalHost) States(context.Context) ([]*EntityState, error) {
	h.mu.RLock()
	out := make([]*EntityState, 0, len(h.states))
	for _, st := range h.states {
		out = append(out, st.Clone())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (h *ExternalHost) SystemInfo(context.Context) (SystemInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.info, nil
}

// AddEntity registers a registry entry used to enrich documents.
func (h *ExternalHost) AddEntity(e EntityEntry) { store(h, h.entities, e.EntityID, e) }

func (h *ExternalHost) AddDevice(d DeviceEntry) { store(h, h.devices, d.ID, d) }

func (h *ExternalHost) AddArea(a AreaEntry) { store(h, h.areas, a.ID, a) }

func (h *ExternalHost) AddFloor(f FloorEntry) { store(h, h.floors, f.ID, f) }

func (h *ExternalHost) AddLabel(l LabelEntry) { store(h, h.labels, l.ID, l) }

func (h *ExternalHost) Entity(id string) (EntityEntry, bool) { return lookup(h, h.entities, id) }

func (h *ExternalHost) Device(id string) (DeviceEntry, bool) { return lookup(h, h.devices, id) }

func (h *ExternalHost) Area(id string) (AreaEntry, bool) { return lookup(h, h.areas, id) }

func (h *ExternalHost) Floor(id string) (FloorEntry, bool) { return lookup(h, h.floors, id) }

func (h *ExternalHost) Label(id string) (LabelEntry, bool) { return lookup(h, h.labels, id) }

func store[T any](h *ExternalHost, m map[string]T, id string, v T) {
	h.mu.Lock()
	m[id] = v
	h.mu.Unlock()
}

func lookup[T any](h *ExternalHost, m map[string]T, id string) (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := m[id]
	return v, ok
}

func (h *ExternalHost) handlersLocked() []StateChangedHandler {
	ids := make([]int, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]StateChangedHandler, len(ids))
	for i, id := range ids {
		out[i] = h.handlers[id]
	}
	return out
}

func (h *ExternalHost) dispatch(handlers []StateChangedHandler, ev StateChangedEvent) {
	for _, fn := range handlers {
		fn(ev)
	}
}

func validEntityID(id string) bool {
	d, o, ok := strings.Cut(id, ".")
	return ok && d != "" && o != ""
}

var _ Host = (*ExternalHost)(nil)
