package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

type entry struct {
	payload []byte
	stored  time.Time
}

// Memory is a process-local TTL cache. Payloads are stored serialized so
// callers never share maps with the cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	clock leadership.Clock
}

var _ leadership.Cache = (*Memory)(nil)

// NewMemory builds a cache whose entries expire after ttl. A zero ttl keeps
// entries forever.
func NewMemory(ttl time.Duration, clock leadership.Clock) *Memory {
	return &Memory{items: make(map[string]entry), ttl: ttl, clock: clock}
}

// Get returns the cached result for key. Expired entries are misses.
func (m *Memory) Get(_ context.Context, key string) (leadership.Result, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || Expired(e.stored, m.ttl, m.now()) {
		return leadership.Result{}, false, nil
	}
	var res leadership.Result
	if err := json.Unmarshal(e.payload, &res); err != nil {
		return leadership.Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return res, true, nil
}

// Set stores result under key.
func (m *Memory) Set(_ context.Context, key string, result leadership.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	m.mu.Lock()
	m.items[key] = entry{payload: payload, stored: m.now()}
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) now() time.Time {
	if m.clock == nil {
		return time.Now().UTC()
	}
	return m.clock.Now()
}

// Expired reports whether an entry stored at stored has outlived ttl at now.
func Expired(stored time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(stored) > ttl
}
