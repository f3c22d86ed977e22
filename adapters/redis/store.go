// Package redis implements the shared store ports on a Redis backend.
// Batches run as MULTI/EXEC transactions, which gives the atomic, ordered,
// no-intermediate-state execution the KVStore port requires.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/apimeter/ports"
)

// Store implements ports.KVStore on a go-redis client.
type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// queued pairs the enqueue of one command with the collection of its result
// once the transaction has executed.
type queued struct {
	enqueue func(ctx context.Context, p redis.Pipeliner)
	collect func() error
}

type txBatch struct {
	queue []queued
}

// RunBatch executes the queued operations inside one MULTI/EXEC round trip.
func (s *Store) RunBatch(ctx context.Context, fn func(ports.Batch)) error {
	b := &txBatch{}
	fn(b)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, q := range b.queue {
			q.enqueue(ctx, p)
		}
		return nil
	})
	// A missed GET surfaces as redis.Nil on the first failing command; that
	// is an absent key, not a store failure.
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: batch: %w", err)
	}

	for _, q := range b.queue {
		if err := q.collect(); err != nil {
			return fmt.Errorf("redis: batch result: %w", err)
		}
	}
	return nil
}

func (b *txBatch) Get(key string) *ports.StringResult {
	res := &ports.StringResult{}
	var cmd *redis.StringCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.Get(ctx, key) },
		collect: func() error {
			val, err := cmd.Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			res.Val, res.OK = val, true
			return nil
		},
	})
	return res
}

func (b *txBatch) Set(key, value string) {
	var cmd *redis.StatusCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.Set(ctx, key, value, 0) },
		collect: func() error { return cmd.Err() },
	})
}

func (b *txBatch) IncrBy(key string, n int64) *ports.IntResult {
	res := &ports.IntResult{}
	var cmd *redis.IntCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.IncrBy(ctx, key, n) },
		collect: func() error {
			val, err := cmd.Result()
			if err != nil {
				return err
			}
			res.Val = val
			return nil
		},
	})
	return res
}

func (b *txBatch) SAdd(key, member string) {
	var cmd *redis.IntCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.SAdd(ctx, key, member) },
		collect: func() error { return cmd.Err() },
	})
}

func (b *txBatch) SIsMember(key, member string) *ports.BoolResult {
	res := &ports.BoolResult{}
	var cmd *redis.BoolCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.SIsMember(ctx, key, member) },
		collect: func() error {
			val, err := cmd.Result()
			if err != nil {
				return err
			}
			res.Val = val
			return nil
		},
	})
	return res
}

func (b *txBatch) RPush(key, value string) {
	var cmd *redis.IntCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.RPush(ctx, key, value) },
		collect: func() error { return cmd.Err() },
	})
}

func (b *txBatch) LTrim(key string, start, stop int64) {
	var cmd *redis.StatusCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.LTrim(ctx, key, start, stop) },
		collect: func() error { return cmd.Err() },
	})
}

func (b *txBatch) ExpireAt(key string, at time.Time) {
	var cmd *redis.BoolCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.ExpireAt(ctx, key, at) },
		collect: func() error { return cmd.Err() },
	})
}

func (b *txBatch) Expire(key string, ttl time.Duration) {
	var cmd *redis.BoolCmd
	b.queue = append(b.queue, queued{
		enqueue: func(ctx context.Context, p redis.Pipeliner) { cmd = p.Expire(ctx, key, ttl) },
		collect: func() error { return cmd.Err() },
	})
}

// Get returns the value at key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes value at key with an optional ttl.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// SAdd adds members to the set at key.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis: sadd %s: %w", key, err)
	}
	return nil
}

// SMembers returns all members of the set at key.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: smembers %s: %w", key, err)
	}
	return members, nil
}

// LRange returns list elements in the inclusive range [start, stop].
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lrange %s: %w", key, err)
	}
	return vals, nil
}

// Ensure interface compliance.
var (
	_ ports.KVStore = (*Store)(nil)
	_ ports.Batch   = (*txBatch)(nil)
)
