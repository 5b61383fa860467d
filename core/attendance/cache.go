package attendance

import (
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	val    T
	period string
	exp    time.Time
}

// statsCache keeps computed values per (school, period) for a TTL.
// A zero or negative TTL disables caching.
// Every period carries a generation bumped on invalidation: a value computed
// from a read started before an invalidation is never stored.
type statsCache[T any] struct {
	mu   sync.RWMutex
	m    map[string]cacheEntry[T]
	gens map[string]uint64 // period -> generation
	ttl  time.Duration
	now  func() time.Time
}

func newStatsCache[T any](ttl time.Duration) *statsCache[T] {
	return &statsCache[T]{
		m:    make(map[string]cacheEntry[T]),
		gens: make(map[string]uint64),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Generation must be read before fetching the data handed to Set.
func (c *statsCache[T]) Generation(scope Scope) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[scope.Period]
}

func (c *statsCache[T]) Get(scope Scope) (T, bool) {
	var zero T
	if c.ttl <= 0 {
		return zero, false
	}
	c.mu.RLock()
	e, ok := c.m[scope.Key()]
	c.mu.RUnlock()
	if !ok || c.now().After(e.exp) {
		return zero, false
	}
	return e.val, true
}

// Set stores v unless the scope's period was invalidated since gen was read.
// It reports whether v was stored.
func (c *statsCache[T]) Set(scope Scope, v T, gen uint64) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[scope.Period] != gen {
		return false
	}
	c.m[scope.Key()] = cacheEntry[T]{val: v, period: scope.Period, exp: c.now().Add(c.ttl)}
	return true
}

// InvalidateDay drops every entry, of any school, covering the day or its month.
func (c *statsCache[T]) InvalidateDay(day string) {
	month := MonthOf(day)
	c.mu.Lock()
	c.gens[day]++
	c.gens[month]++
	for k, e := range c.m {
		if e.period == day || e.period == month {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
}

func (c *statsCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
