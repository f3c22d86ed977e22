package memory

import (
	"context"
	"sync"

	"github.com/artpar/apimeter/ports"
)

// MetricRegistry keeps per-service metric id/name mappings in memory.
type MetricRegistry struct {
	mu    sync.RWMutex
	names map[string]map[string]string // service id -> metric id -> name
}

// NewMetricRegistry creates an empty in-memory metric registry.
func NewMetricRegistry() *MetricRegistry {
	return &MetricRegistry{names: make(map[string]map[string]string)}
}

// SaveMetric registers a metric id and name for a service.
func (r *MetricRegistry) SaveMetric(_ context.Context, serviceID, metricID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[serviceID] == nil {
		r.names[serviceID] = make(map[string]string)
	}
	r.names[serviceID][metricID] = name
	return nil
}

// MetricName resolves a metric id to its name; empty when unknown.
func (r *MetricRegistry) MetricName(_ context.Context, serviceID, metricID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[serviceID][metricID], nil
}

// MetricIDs lists all metric ids registered for a service.
func (r *MetricRegistry) MetricIDs(_ context.Context, serviceID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.names[serviceID]))
	for id := range r.names[serviceID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// Ensure interface compliance.
var _ ports.MetricRegistry = (*MetricRegistry)(nil)
