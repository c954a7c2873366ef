// Package sensor keeps the latest known state of each water-level sensor.
package sensor

import (
	"sort"
	"sync"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Registry is a concurrency-safe domain.SensorOracle fed by status updates.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]domain.SensorNode
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]domain.SensorNode)}
}

// Upsert replaces the stored state of a sensor. A nil LastReading keeps the previous one.
func (r *Registry) Upsert(node domain.SensorNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.nodes[node.ID]; ok && node.LastReading == nil {
		node.LastReading = prev.LastReading
	}
	r.nodes[node.ID] = node
}

// Sensors returns a snapshot of every sensor, ordered by id.
func (r *Registry) Sensors() []domain.SensorNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SensorNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
