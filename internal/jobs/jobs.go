// Package jobs runs the periodic background work on cron schedules: the
// weather-driven re-evaluation pass and the alert expiry sweep.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string // five-field cron expression or @every descriptor
	Run      func(ctx context.Context)
}

// Runner schedules Jobs. Overlapping runs of the same job are skipped.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Runner. Jobs panicking are recovered and logged.
func New(logger *slog.Logger) *Runner {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job. It returns an error for an unparsable schedule.
func (r *Runner) Add(job Job) error {
	_, err := r.cron.AddFunc(job.Schedule, func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		r.logger.Debug("job running", "job", job.Name)
		job.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s %q: %w", job.Name, job.Schedule, err)
	}
	r.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Len returns the number of registered jobs.
func (r *Runner) Len() int { return len(r.cron.Entries()) }

// Start begins running jobs in the background.
func (r *Runner) Start() { r.cron.Start() }

// Stop cancels the context handed to running jobs and waits for them to
// return or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop jobs: %w", ctx.Err())
	}
}

// PassRunner runs an engine pass over the stored reports.
type PassRunner interface {
	Evaluate(ctx context.Context) engine.PassResult
}

// WeatherRefresh re-evaluates stored reports against fresh weather so a
// change in rainfall can lift a cluster over the threshold without new reports.
func WeatherRefresh(schedule string, runner PassRunner, logger *slog.Logger) Job {
	return Job{
		Name:     "weather_refresh",
		Schedule: schedule,
		Run: func(ctx context.Context) {
			res := runner.Evaluate(ctx)
			if len(res.Created)+len(res.Updated) > 0 {
				logger.Info("weather refresh changed alerts",
					"created", len(res.Created),
					"updated", len(res.Updated),
				)
			}
		},
	}
}

// Sweeper deactivates expired alerts.
type Sweeper interface {
	SweepExpired(ctx context.Context) []domain.Alert
}

// ExpirySweep runs the expiry policy over active alerts.
func ExpirySweep(schedule string, sweeper Sweeper, logger *slog.Logger) Job {
	return Job{
		Name:     "expiry_sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) {
			if expired := sweeper.SweepExpired(ctx); len(expired) > 0 {
				logger.Info("expired alerts swept", "count", len(expired))
			}
		},
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
