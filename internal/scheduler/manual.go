package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Manual is a Scheduler whose callbacks run synchronously, in due order, on
// the goroutine that calls Advance. Ties run in scheduling order.
type Manual struct {
	clock *clockwork.FakeClock

	mu    sync.Mutex
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	due time.Time
	seq int
	fn  func()
}

// NewManual creates a Manual scheduler driving clock.
func NewManual(clock *clockwork.FakeClock) *Manual {
	return &Manual{clock: clock}
}

// ScheduleOnce implements Scheduler.
func (m *Manual) ScheduleOnce(delay time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{due: m.clock.Now().Add(delay), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, pending := range m.tasks {
			if pending == t {
				m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Pending returns the number of callbacks not yet run or cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, stopping at each due callback to run it.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		if step := t.due.Sub(m.clock.Now()); step > 0 {
			m.clock.Advance(step)
		}
		t.fn()
	}
	if rest := target.Sub(m.clock.Now()); rest > 0 {
		m.clock.Advance(rest)
	}
}

func (m *Manual) popDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].due.Before(m.tasks[j].due)
	})
	next := m.tasks[0]
	if next.due.After(target) {
		return nil
	}
	m.tasks = m.tasks[1:]
	return next
}
