// Package reports holds submitted reports for clustering.
package reports

import (
	"sync"
	"time"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Store keeps reports in submission order. Reports are immutable except for
// IsActive. Reports older than the retention window are pruned on Add.
type Store struct {
	mu        sync.RWMutex
	reports   []domain.Report
	index     map[string]int
	retention time.Duration
}

// NewStore creates a Store that prunes reports older than retention and
// leaves them out of Active. Zero means the clustering staleness window.
func NewStore(retention time.Duration) *Store {
	if retention <= 0 {
		retention = domain.ReportStalenessWindow
	}
	return &Store{
		index:     make(map[string]int),
		retention: retention,
	}
}

// Add appends reports, ignoring ids already stored. It returns the number added.
func (s *Store) Add(now time.Time, reports ...domain.Report) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(now)
	added := 0
	for _, r := range reports {
		if _, dup := s.index[r.ID]; dup {
			continue
		}
		s.index[r.ID] = len(s.reports)
		s.reports = append(s.reports, r)
		added++
	}
	return added
}

// Active returns active reports inside the retention window, in submission order.
func (s *Store) Active(now time.Time) []domain.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-s.retention)
	var out []domain.Report
	for _, r := range s.reports {
		if r.IsActive && r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns a stored report by id.
func (s *Store) Get(id string) (domain.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Report{}, false
	}
	return s.reports[i], true
}

// Deactivate marks the given reports inactive and returns how many changed.
func (s *Store) Deactivate(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if i, ok := s.index[id]; ok && s.reports[i].IsActive {
			s.reports[i].IsActive = false
			n++
		}
	}
	return n
}

// Len returns the number of retained reports.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// prune drops reports older than retention. Caller holds the write lock.
func (s *Store) prune(now time.Time) {
	cutoff := now.Add(-s.retention)
	keep := s.reports[:0]
	for _, r := range s.reports {
		if r.Timestamp.After(cutoff) {
			keep = append(keep, r)
		}
	}
	if len(keep) == len(s.reports) {
		return
	}
	s.reports = keep
	s.index = make(map[string]int, len(keep))
	for i, r := range keep {
		s.index[r.ID] = i
	}
}
