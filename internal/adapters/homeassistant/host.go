package homeassistant

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

type stateChangedPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string              `json:"entity_id"`
		OldState *domain.EntityState `json:"old_state"`
		NewState *domain.EntityState `json:"new_state"`
	} `json:"data"`
	TimeFired time.Time `json:"time_fired"`
}

// Subscribe delivers state_changed events to handler on the reader
// goroutine. Only state_changed is supported.
func (c *Client) Subscribe(eventType string, handler ports.StateChangedHandler) (func(), error) {
	if eventType != ports.EventStateChanged {
		return nil, errs.WrapInvalid(errs.ErrInvalidConfig, component, "Subscribe")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	id, err := c.subscribe(ctx, eventType, func(raw json.RawMessage) {
		var p stateChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.obs.LogWarn("event_decode_failed", ports.F("event_type", eventType), ports.F("error", err.Error()))
			return
		}
		handler(domain.StateChangedEvent{
			EntityID:  p.Data.EntityID,
			OldState:  p.Data.OldState,
			NewState:  p.Data.NewState,
			TimeFired: p.TimeFired,
		})
	})
	if err != nil {
		return nil, err
	}
	return func() { c.unsubscribe(id) }, nil
}

// States returns a snapshot of every entity.
func (c *Client) States(ctx context.Context) ([]*domain.EntityState, error) {
	var states []*domain.EntityState
	if err := c.call(ctx, map[string]any{"type": "get_states"}, &states); err != nil {
		return nil, err
	}
	return states, nil
}

type coreConfig struct {
	Version   string   `json:"version"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// SystemInfo combines the instance's core config with the local machine.
func (c *Client) SystemInfo(ctx context.Context) (domain.SystemInfo, error) {
	var cfg coreConfig
	if err := c.call(ctx, map[string]any{"type": "get_config"}, &cfg); err != nil {
		return domain.SystemInfo{}, err
	}
	hostname, _ := os.Hostname()
	return domain.SystemInfo{
		Version:   cfg.Version,
		Arch:      runtime.GOARCH,
		OSName:    osName(runtime.GOOS),
		Hostname:  hostname,
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
	}, nil
}

func osName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	default:
		return goos
	}
}

var (
	_ ports.EventBus           = (*Client)(nil)
	_ ports.StateSource        = (*Client)(nil)
	_ ports.SystemInfoProvider = (*Client)(nil)
	_ ports.Registry           = (*Client)(nil)
)
