// Package cache provides the in-memory reference descriptor cache.
package cache

import (
	"sync"
	"time"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/metrics"
)

const (
	DefaultCapacity = 500
	DefaultTTL      = 30 * time.Minute
)

// entry is a node of the recency list.
type entry struct {
	identity    string
	fingerprint string
	descriptor  facematch.Descriptor
	createdAt   time.Time
	prev        *entry
	next        *entry
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"-"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Evictions int64         `json:"evictions"`
}

// DescriptorCache maps an identity to the descriptor computed from its
// reference photo. An entry is only returned while it is younger than the TTL
// and was stored under the fingerprint the caller presents. Reads promote to
// most recently used; inserting past capacity evicts the least recently used.
type DescriptorCache struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*entry
	// head.next is the most recently used, tail.prev the least.
	head *entry
	tail *entry

	hits      int64
	misses    int64
	evictions int64
}

// Option configures a DescriptorCache.
type Option func(*DescriptorCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *DescriptorCache) {
		c.now = now
	}
}

// New creates a cache. Non-positive capacity or ttl select the defaults.
func New(capacity int, ttl time.Duration, opts ...Option) *DescriptorCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &DescriptorCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the descriptor for identity if it is fresh and was stored with
// fingerprint. Stale or mismatching entries are removed.
func (c *DescriptorCache) Get(identity, fingerprint string) (facematch.Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[identity]
	if !ok {
		c.miss("absent")
		return facematch.Descriptor{}, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.removeEntry(e)
		c.miss("expired")
		return facematch.Descriptor{}, false
	}

	if e.fingerprint != fingerprint {
		c.removeEntry(e)
		c.miss("fingerprint")
		return facematch.Descriptor{}, false
	}

	c.moveToFront(e)
	c.hits++
	metrics.CacheHits.Inc()
	return e.descriptor, true
}

// Set stores descriptor for identity, replacing any previous entry.
func (c *DescriptorCache) Set(identity string, descriptor facematch.Descriptor, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[identity]; ok {
		e.descriptor = descriptor
		e.fingerprint = fingerprint
		e.createdAt = now
		c.moveToFront(e)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{
		identity:    identity,
		fingerprint: fingerprint,
		descriptor:  descriptor,
		createdAt:   now,
	}
	c.addToFront(e)
	c.items[identity] = e
	metrics.CacheSize.Set(float64(len(c.items)))
}

// Invalidate removes identity. Returns true if an entry was present.
func (c *DescriptorCache) Invalidate(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[identity]; ok {
		c.removeEntry(e)
		return true
	}
	return false
}

// Clear drops every entry. Counters are kept.
func (c *DescriptorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
	metrics.CacheSize.Set(0)
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *DescriptorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters.
func (c *DescriptorCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		TTL:       c.ttl,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Identities returns cached identities from most to least recently used.
func (c *DescriptorCache) Identities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.items))
	for e := c.head.next; e != c.tail; e = e.next {
		out = append(out, e.identity)
	}
	return out
}

// miss must be called with mu held.
func (c *DescriptorCache) miss(reason string) {
	c.misses++
	metrics.CacheMisses.WithLabelValues(reason).Inc()
}

// The list helpers below must be called with mu held.

func (c *DescriptorCache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *DescriptorCache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (c *DescriptorCache) moveToFront(e *entry) {
	if c.head.next == e {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *DescriptorCache) removeEntry(e *entry) {
	c.unlink(e)
	delete(c.items, e.identity)
	metrics.CacheSize.Set(float64(len(c.items)))
}

func (c *DescriptorCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
	c.evictions++
	metrics.CacheEvictions.Inc()
}
