// Package memory provides in-memory adapter implementations.
// Used for tests and single-process deployments.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/artpar/apimeter/ports"
)

type entry struct {
	str      string
	set      map[string]bool
	list     []string
	expireAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Store is an in-memory implementation of ports.KVStore. Expiry is evaluated
// lazily against the injected clock, so tests can advance a fake clock to
// expire keys.
type Store struct {
	mu    sync.Mutex
	data  map[string]*entry
	clock ports.Clock
}

// NewStore creates an empty in-memory store reading time from clock.
func NewStore(clock ports.Clock) *Store {
	return &Store{
		data:  make(map[string]*entry),
		clock: clock,
	}
}

// live returns the entry at key, dropping it first if it has expired.
func (s *Store) live(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.clock.Now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Store) ensure(key string) *entry {
	if e := s.live(key); e != nil {
		return e
	}
	e := &entry{}
	s.data[key] = e
	return e
}

// RunBatch applies the queued operations under one lock acquisition, which
// gives the all-together visibility the port requires.
func (s *Store) RunBatch(_ context.Context, fn func(ports.Batch)) error {
	b := &batch{}
	fn(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		op(s)
	}
	return nil
}

// Get returns the value at key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	return e.str, true, nil
}

// Set writes value at key with an optional ttl.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.str = value
	if ttl > 0 {
		e.expireAt = s.clock.Now().Add(ttl)
	} else {
		e.expireAt = time.Time{}
	}
	return nil
}

// SAdd adds members to the set at key.
func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	if e.set == nil {
		e.set = make(map[string]bool)
	}
	for _, m := range members {
		e.set[m] = true
	}
	return nil
}

// SMembers returns all members of the set at key.
func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	return members, nil
}

// LRange returns list elements in the inclusive range [start, stop];
// negative indices count from the tail.
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	lo, hi, ok := rangeBounds(int64(len(e.list)), start, stop)
	if !ok {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, e.list[lo:hi+1])
	return out, nil
}

// Keys returns all live keys. Test helper.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if s.live(k) != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// TTL returns the expiry instant of key; zero if the key is absent or has no
// expiry. Test helper.
func (s *Store) TTL(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return time.Time{}
	}
	return e.expireAt
}

// rangeBounds normalizes a possibly-negative inclusive range against a list
// of length n.
func rangeBounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

// batch queues operations until RunBatch applies them.
type batch struct {
	ops []func(*Store)
}

func (b *batch) Get(key string) *ports.StringResult {
	res := &ports.StringResult{}
	b.ops = append(b.ops, func(s *Store) {
		if e := s.live(key); e != nil {
			res.Val, res.OK = e.str, true
		}
	})
	return res
}

func (b *batch) Set(key, value string) {
	b.ops = append(b.ops, func(s *Store) {
		e := s.ensure(key)
		e.str = value
		e.expireAt = time.Time{}
	})
}

func (b *batch) IncrBy(key string, n int64) *ports.IntResult {
	res := &ports.IntResult{}
	b.ops = append(b.ops, func(s *Store) {
		e := s.ensure(key)
		v := ports.StringResult{Val: e.str, OK: e.str != ""}.Int()
		v += n
		e.str = strconv.FormatInt(v, 10)
		res.Val = v
	})
	return res
}

func (b *batch) SAdd(key, member string) {
	b.ops = append(b.ops, func(s *Store) {
		e := s.ensure(key)
		if e.set == nil {
			e.set = make(map[string]bool)
		}
		e.set[member] = true
	})
}

func (b *batch) SIsMember(key, member string) *ports.BoolResult {
	res := &ports.BoolResult{}
	b.ops = append(b.ops, func(s *Store) {
		if e := s.live(key); e != nil {
			res.Val = e.set[member]
		}
	})
	return res
}

func (b *batch) RPush(key, value string) {
	b.ops = append(b.ops, func(s *Store) {
		e := s.ensure(key)
		e.list = append(e.list, value)
	})
}

func (b *batch) LTrim(key string, start, stop int64) {
	b.ops = append(b.ops, func(s *Store) {
		e := s.live(key)
		if e == nil {
			return
		}
		lo, hi, ok := rangeBounds(int64(len(e.list)), start, stop)
		if !ok {
			e.list = nil
			return
		}
		e.list = append([]string(nil), e.list[lo:hi+1]...)
	})
}

func (b *batch) ExpireAt(key string, at time.Time) {
	b.ops = append(b.ops, func(s *Store) {
		if e := s.live(key); e != nil {
			e.expireAt = at
		}
	})
}

func (b *batch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(s *Store) {
		if e := s.live(key); e != nil {
			e.expireAt = s.clock.Now().Add(ttl)
		}
	})
}

// Ensure interface compliance.
var (
	_ ports.KVStore = (*Store)(nil)
	_ ports.Batch   = (*batch)(nil)
)
