package hassflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
)

func newTestHost() (*ExternalHost, *time.Time) {
	h := NewExternalHost(SystemInfo{Version: "2024.5.0", Hostname: "test"})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	return h, &now
}

func TestExternalHostSetStateNotifies(t *testing.T) {
	h, now := newTestHost()

	var events []StateChangedEvent
	unsub, err := h.Subscribe(EventStateChanged, func(ev StateChangedEvent) { events = append(events, ev) })
	require.NoError(t, err)

	_, err = h.SetState("sensor.temp", "21", map[string]any{"unit_of_measurement": "°C"})
	require.NoError(t, err)

	first := *now
	*now = now.Add(time.Minute)
	st, err := h.SetState("sensor.temp", "21", map[string]any{"unit_of_measurement": "°F"})
	require.NoError(t, err)
	assert.Equal(t, first, st.LastChanged, "same state keeps last_changed")
	assert.Equal(t, *now, st.LastUpdated)

	require.Len(t, events, 2)
	assert.Nil(t, events[0].OldState)
	assert.Equal(t, "°C", events[1].OldState.Attributes["unit_of_measurement"])
	assert.Equal(t, "°F", events[1].NewState.Attributes["unit_of_measurement"])
	assert.Equal(t, *now, events[1].TimeFired)

	unsub()
	unsub()
	_, err = h.SetState("sensor.temp", "22", nil)
	require.NoError(t, err)
	assert.Len(t, events, 2, "unsubscribed handler must not run")
}

func TestExternalHostStateIsolation(t *testing.T) {
	h, _ := newTestHost()
	attrs := map[string]any{"brightness": 10}
	_, err := h.SetState("light.desk", "on", attrs)
	require.NoError(t, err)

	attrs["brightness"] = 99
	states, err := h.States(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 10, states[0].Attributes["brightness"])

	states[0].Attributes["brightness"] = 50
	again, _ := h.States(context.Background())
	assert.Equal(t, 10, again[0].Attributes["brightness"])
}

func TestExternalHostNestedAttributeIsolation(t *testing.T) {
	h, _ := newTestHost()
	var events []StateChangedEvent
	_, err := h.Subscribe(EventStateChanged, func(ev StateChangedEvent) { events = append(events, ev) })
	require.NoError(t, err)

	modes := []any{"heat", "cool"}
	attrs := map[string]any{
		"hvac_modes": modes,
		"preset":     map[string]any{"name": "eco"},
	}
	_, err = h.SetState("climate.hall", "heat", attrs)
	require.NoError(t, err)

	modes[0] = "off"
	attrs["preset"].(map[string]any)["name"] = "boost"

	states, err := h.States(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, []any{"heat", "cool"}, states[0].Attributes["hvac_modes"])
	assert.Equal(t, "eco", states[0].Attributes["preset"].(map[string]any)["name"])

	states[0].Attributes["hvac_modes"].([]any)[1] = "dry"
	require.Len(t, events, 1)
	assert.Equal(t, "cool", events[0].NewState.Attributes["hvac_modes"].([]any)[1])
	again, _ := h.States(context.Background())
	assert.Equal(t, "cool", again[0].Attributes["hvac_modes"].([]any)[1])
}

func TestExternalHostRemoveState(t *testing.T) {
	h, _ := newTestHost()
	var got []StateChangedEvent
	_, err := h.Subscribe(EventStateChanged, func(ev StateChangedEvent) { got = append(got, ev) })
	require.NoError(t, err)

	_, err = h.SetState("switch.fan", "off", nil)
	require.NoError(t, err)

	assert.True(t, h.RemoveState("switch.fan"))
	assert.False(t, h.RemoveState("switch.fan"))

	require.Len(t, got, 2)
	assert.Nil(t, got[1].NewState)
	assert.Equal(t, "off", got[1].OldState.State)

	states, _ := h.States(context.Background())
	assert.Empty(t, states)
}

func TestExternalHostRejectsBadInput(t *testing.T) {
	h, _ := newTestHost()

	for _, id := range []string{"", "sensor", ".temp", "sensor."} {
		_, err := h.SetState(id, "1", nil)
		assert.Equal(t, errs.Invalid, errs.ClassOf(err), id)
	}

	_, err := h.Subscribe("call_service", func(StateChangedEvent) {})
	assert.Equal(t, errs.Invalid, errs.ClassOf(err))
	_, err = h.Subscribe(EventStateChanged, nil)
	assert.Error(t, err)
}

func TestExternalHostStatesSorted(t *testing.T) {
	h, _ := newTestHost()
	for _, id := range []string{"sensor.b", "light.z", "sensor.a"} {
		_, err := h.SetState(id, "1", nil)
		require.NoError(t, err)
	}
	states, err := h.States(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(states))
	for i, st := range states {
		ids[i] = st.EntityID
	}
	assert.Equal(t, []string{"light.z", "sensor.a", "sensor.b"}, ids)
}

func TestExternalHostRegistry(t *testing.T) {
	h, _ := newTestHost()
	h.AddEntity(EntityEntry{EntityID: "sensor.temp", DeviceID: "dev1", Labels: []string{"lab1"}})
	h.AddDevice(DeviceEntry{ID: "dev1", Name: "Thermometer", AreaID: "kitchen"})
	h.AddArea(AreaEntry{ID: "kitchen", Name: "Kitchen", FloorID: "ground"})
	h.AddFloor(FloorEntry{ID: "ground", Name: "Ground floor"})
	h.AddLabel(LabelEntry{ID: "lab1", Name: "Climate"})

	e, ok := h.Entity("sensor.temp")
	require.True(t, ok)
	assert.Equal(t, "dev1", e.DeviceID)

	d, ok := h.Device("dev1")
	require.True(t, ok)
	assert.Equal(t, "Thermometer", d.DisplayName())

	a, _ := h.Area("kitchen")
	f, _ := h.Floor(a.FloorID)
	l, _ := h.Label("lab1")
	assert.Equal(t, "Ground floor", f.Name)
	assert.Equal(t, "Climate", l.Name)

	_, ok = h.Device("missing")
	assert.False(t, ok)

	info, err := h.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024.5.0", info.Version)
}
