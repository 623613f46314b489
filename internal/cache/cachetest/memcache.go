// Package cachetest provides an in-memory cache.Cache for unit tests.
package cachetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/storepulse/internal/cache"
)

// ErrUnavailable is returned by every method when Down is set.
var ErrUnavailable = errors.New("cache unavailable")

type entry struct {
	value   []byte
	expires time.Time
}

// MemCache is a map-backed cache with TTL support.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]entry
	// Down makes every call fail, simulating a Redis outage.
	Down bool
}

var _ cache.Cache = (*MemCache)(nil)

func New() *MemCache {
	return &MemCache{entries: map[string]entry{}}
}

func (m *MemCache) get(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func (m *MemCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return ErrUnavailable
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return nil, false, ErrUnavailable
	}
	e, ok := m.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *MemCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return ErrUnavailable
	}
	delete(m.entries, key)
	return nil
}

func (m *MemCache) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return ErrUnavailable
	}
	return nil
}

func (m *MemCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return 0, ErrUnavailable
	}
	e, ok := m.get(key)
	var n int64
	if ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	} else {
		e.expires = time.Now().Add(expiry)
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	m.entries[key] = e
	return n, nil
}
