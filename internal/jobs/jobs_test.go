package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingPass struct {
	calls  atomic.Int64
	result engine.PassResult
}

func (c *countingPass) Evaluate(context.Context) engine.PassResult {
	c.calls.Add(1)
	return c.result
}

type countingSweeper struct {
	calls   atomic.Int64
	expired []domain.Alert
}

func (c *countingSweeper) SweepExpired(context.Context) []domain.Alert {
	c.calls.Add(1)
	return c.expired
}

func TestRunner_AddRejectsBadSchedule(t *testing.T) {
	r := New(discardLogger())
	err := r.Add(Job{Name: "broken", Schedule: "every now and then", Run: func(context.Context) {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 0, r.Len())
}

func TestRunner_RunsScheduledJobs(t *testing.T) {
	r := New(discardLogger())
	pass := &countingPass{}
	sweeper := &countingSweeper{expired: []domain.Alert{{ID: "a1"}}}
	require.NoError(t, r.Add(WeatherRefresh("@every 1s", pass, discardLogger())))
	require.NoError(t, r.Add(ExpirySweep("@every 1s", sweeper, discardLogger())))
	assert.Equal(t, 2, r.Len())

	r.Start()
	require.Eventually(t, func() bool {
		return pass.calls.Load() > 0 && sweeper.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestRunner_StopCancelsJobContext(t *testing.T) {
	r := New(discardLogger())
	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	require.NoError(t, r.Add(Job{Name: "long", Schedule: "@every 1s", Run: func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
	}}))
	r.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.True(t, sawCancel.Load())
}

func TestRunner_RecoversPanickingJob(t *testing.T) {
	r := New(discardLogger())
	var calls atomic.Int64
	require.NoError(t, r.Add(Job{Name: "panics", Schedule: "@every 1s", Run: func(context.Context) {
		calls.Add(1)
		panic("boom")
	}}))
	r.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestWeatherRefresh_RunsPass(t *testing.T) {
	pass := &countingPass{result: engine.PassResult{Created: []domain.Alert{{ID: "a1"}}}}
	job := WeatherRefresh("*/5 * * * *", pass, discardLogger())

	job.Run(context.Background())

	assert.Equal(t, "weather_refresh", job.Name)
	assert.Equal(t, int64(1), pass.calls.Load())
}

func TestExpirySweep_RunsSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	job := ExpirySweep("* * * * *", sweeper, discardLogger())

	job.Run(context.Background())

	assert.Equal(t, "expiry_sweep", job.Name)
	assert.Equal(t, int64(1), sweeper.calls.Load())
}
