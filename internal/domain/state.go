package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityState is an immutable snapshot of one Home Assistant entity.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the part of the entity id before the first dot.
func (s *EntityState) Domain() string {
	d, _, _ := strings.Cut(s.EntityID, ".")
	return d
}

// ObjectID returns the part of the entity id after the first dot.
func (s *EntityState) ObjectID() string {
	_, o, _ := strings.Cut(s.EntityID, ".")
	return o
}

// Name mirrors Home Assistant's State.name: the friendly_name attribute when
// set, otherwise the object id with underscores turned into spaces.
func (s *EntityState) Name() string {
	if v, ok := s.Attributes["friendly_name"].(string); ok && v != "" {
		return v
	}
	return strings.ReplaceAll(s.ObjectID(), "_", " ")
}

// Clone returns a copy that shares no attribute containers with s, so the
// snapshot stays immutable once queued.
func (s *EntityState) Clone() *EntityState {
	if s == nil {
		return nil
	}
	out := *s
	out.Attributes = CloneAttributes(s.Attributes)
	return &out
}

// ChangeReason classifies why a record was captured.
type ChangeReason uint8

const (
	ChangeState ChangeReason = iota + 1
	ChangeAttribute
	ChangePolled
)

func (r ChangeReason) String() string {
	switch r {
	case ChangeState:
		return "STATE"
	case ChangeAttribute:
		return "ATTRIBUTE"
	case ChangePolled:
		return "POLLED"
	default:
		return fmt.Sprintf("ChangeReason(%d)", uint8(r))
	}
}

// Action is the event.action value written to documents.
func (r ChangeReason) Action() string {
	switch r {
	case ChangeState:
		return "State change"
	case ChangeAttribute:
		return "Attribute change"
	case ChangePolled:
		return "Polling"
	default:
		return ""
	}
}

// ParseChangeReason accepts the config spelling of a change reason.
// "POLLING" is kept as an alias for POLLED.
func ParseChangeReason(s string) (ChangeReason, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STATE":
		return ChangeState, nil
	case "ATTRIBUTE":
		return ChangeAttribute, nil
	case "POLLED", "POLLING":
		return ChangePolled, nil
	default:
		return 0, fmt.Errorf("unknown change type %q", s)
	}
}

// RawRecord is what producers put on the queue. It is never mutated after creation.
type RawRecord struct {
	Timestamp time.Time
	State     *EntityState
	Reason    ChangeReason
}

// StateChangedEvent is the payload of a host state_changed notification.
// NewState is nil when the entity was removed.
type StateChangedEvent struct {
	EntityID  string
	NewState  *EntityState
	OldState  *EntityState
	TimeFired time.Time
}

// CloneAttributes deep-copies nested maps and slices. Scalars are shared.
func CloneAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cloneAttribute(v)
	}
	return out
}

func cloneAttribute(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneAttributes(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAttribute(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
