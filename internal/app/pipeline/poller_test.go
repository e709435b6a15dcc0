package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawgate/homeassistant-elasticsearch/internal/adapters/queue"
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

func TestPollerSnapshotsEveryEntity(t *testing.T) {
	src := &mockStates{states: []*domain.EntityState{
		entity("sensor.a", "1", nil),
		nil,
		entity("sensor.b", "2", nil),
	}}
	q := queue.NewMemQueue(0)
	sched := newManualScheduler()
	p := NewPoller(src, q, sched, time.Minute, newMockObs())
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	p.now = func() time.Time { return now }

	require.NoError(t, p.Start())
	task := sched.task("state_poll")
	require.NotNil(t, task)
	assert.Equal(t, time.Minute, task.interval)

	require.NoError(t, sched.run("state_poll"))
	recs := q.Drain()
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, domain.ChangePolled, r.Reason)
		assert.Equal(t, now.UTC(), r.Timestamp)
		assert.Equal(t, time.UTC, r.Timestamp.Location())
	}
	assert.Equal(t, "sensor.a", recs[0].State.EntityID)
	assert.Equal(t, "sensor.b", recs[1].State.EntityID)
}

func TestPollerSourceError(t *testing.T) {
	obs := newMockObs()
	q := queue.NewMemQueue(0)
	p := NewPoller(&mockStates{err: errors.New("host gone")}, q, newManualScheduler(), time.Minute, obs)

	err := p.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Zero(t, q.Len())
	assert.Equal(t, float64(1), obs.counter(ports.MetricPollCycleErrors))
}

func TestPollerRejectsBadInterval(t *testing.T) {
	p := NewPoller(&mockStates{}, queue.NewMemQueue(0), newManualScheduler(), 0, newMockObs())
	err := p.Start()
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestPollerStopCancelsOnce(t *testing.T) {
	sched := newManualScheduler()
	p := NewPoller(&mockStates{}, queue.NewMemQueue(0), sched, time.Second, newMockObs())
	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), errs.ErrAlreadyInitialized)

	p.Stop()
	p.Stop()
	assert.Equal(t, 1, sched.task("state_poll").cancelled)
}
