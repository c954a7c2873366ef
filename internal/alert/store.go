package alert

import (
	"sort"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Store owns alert records. It enforces at most one active alert per area.
// Store is not safe for concurrent use; callers serialize access.
type Store struct {
	byID         map[string]*domain.Alert
	activeByArea map[string]string // area name -> alert id
}

// NewStore creates an empty alert store.
func NewStore() *Store {
	return &Store{
		byID:         make(map[string]*domain.Alert),
		activeByArea: make(map[string]string),
	}
}

func (s *Store) get(id string) (*domain.Alert, bool) {
	a, ok := s.byID[id]
	return a, ok
}

func (s *Store) activeInArea(area string) (*domain.Alert, bool) {
	id, ok := s.activeByArea[area]
	if !ok {
		return nil, false
	}
	return s.get(id)
}

func (s *Store) insert(a *domain.Alert) {
	s.byID[a.ID] = a
	if a.IsActive {
		s.activeByArea[a.AreaName] = a.ID
	}
}

// deactivate drops the alert from the active-area index.
func (s *Store) deactivate(a *domain.Alert) {
	a.IsActive = false
	if s.activeByArea[a.AreaName] == a.ID {
		delete(s.activeByArea, a.AreaName)
	}
}

// Get returns a copy of the alert with the given id.
func (s *Store) Get(id string) (domain.Alert, bool) {
	a, ok := s.byID[id]
	if !ok {
		return domain.Alert{}, false
	}
	return a.Clone(), true
}

// Active returns copies of all active alerts ordered by trigger time.
func (s *Store) Active() []domain.Alert {
	out := make([]domain.Alert, 0, len(s.activeByArea))
	for _, id := range s.activeByArea {
		out = append(out, s.byID[id].Clone())
	}
	sortByTrigger(out)
	return out
}

// All returns copies of every alert, active or not, ordered by trigger time.
func (s *Store) All() []domain.Alert {
	out := make([]domain.Alert, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a.Clone())
	}
	sortByTrigger(out)
	return out
}

func sortByTrigger(alerts []domain.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].TriggeredAt.Equal(alerts[j].TriggeredAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].TriggeredAt.Before(alerts[j].TriggeredAt)
	})
}
