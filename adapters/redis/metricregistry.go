package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/apimeter/ports"
)

// MetricRegistry keeps per-service metric id/name mappings in Redis.
type MetricRegistry struct {
	client *redis.Client
}

// NewMetricRegistry creates a Redis-backed metric registry.
func NewMetricRegistry(client *redis.Client) *MetricRegistry {
	return &MetricRegistry{client: client}
}

func metricNameKey(serviceID, metricID string) string {
	return fmt.Sprintf("metric/service_id:%s/id:%s/name", serviceID, metricID)
}

func metricIDKey(serviceID, name string) string {
	return fmt.Sprintf("metric/service_id:%s/name:%s/id", serviceID, name)
}

func metricIDsKey(serviceID string) string {
	return fmt.Sprintf("metrics/service_id:%s/ids", serviceID)
}

// SaveMetric registers a metric id and name for a service. The forward and
// reverse mappings and the id set are written in one transaction.
func (r *MetricRegistry) SaveMetric(ctx context.Context, serviceID, metricID, name string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, metricNameKey(serviceID, metricID), name, 0)
		p.Set(ctx, metricIDKey(serviceID, name), metricID, 0)
		p.SAdd(ctx, metricIDsKey(serviceID), metricID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save metric %s/%s: %w", serviceID, metricID, err)
	}
	return nil
}

// MetricName resolves a metric id to its name; empty when unknown.
func (r *MetricRegistry) MetricName(ctx context.Context, serviceID, metricID string) (string, error) {
	name, err := r.client.Get(ctx, metricNameKey(serviceID, metricID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: metric name %s/%s: %w", serviceID, metricID, err)
	}
	return name, nil
}

// MetricIDs lists all metric ids registered for a service.
func (r *MetricRegistry) MetricIDs(ctx context.Context, serviceID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, metricIDsKey(serviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: metric ids %s: %w", serviceID, err)
	}
	return ids, nil
}

// Ensure interface compliance.
var _ ports.MetricRegistry = (*MetricRegistry)(nil)
