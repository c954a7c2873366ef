// Package scheduler runs one-shot callbacks on an injectable clock so timer
// logic can be driven by a fake clock in tests.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CancelFunc stops a pending callback. It reports whether the callback was
// still pending.
type CancelFunc func() bool

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) CancelFunc
}

// ClockScheduler implements Scheduler with clockwork timers.
type ClockScheduler struct {
	clock clockwork.Clock
	wg    sync.WaitGroup
}

// New creates a ClockScheduler on the given clock.
func New(clock clockwork.Clock) *ClockScheduler {
	return &ClockScheduler{clock: clock}
}

// ScheduleOnce runs fn once after delay unless cancelled first.
func (s *ClockScheduler) ScheduleOnce(delay time.Duration, fn func()) CancelFunc {
	s.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(s.wg.Done) }

	timer := s.clock.AfterFunc(delay, func() {
		defer done()
		fn()
	})
	return func() bool {
		stopped := timer.Stop()
		if stopped {
			done()
		}
		return stopped
	}
}

// Wait blocks until every scheduled callback has run or been cancelled.
func (s *ClockScheduler) Wait() {
	s.wg.Wait()
}
