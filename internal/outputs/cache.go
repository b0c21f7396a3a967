package outputs

import (
	"sync"

	"synthmon/internal/models"
)

// ResultsCache stores recent check events in memory (ephemeral).
// The SNMP agent serves its recent-results table from this cache; it
// resets on process restart.
type ResultsCache struct {
	maxSize int
	events  []*models.CheckEvent
	mu      sync.RWMutex
}

// NewResultsCache creates a new results cache with the specified size
func NewResultsCache(maxSize int) *ResultsCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ResultsCache{
		maxSize: maxSize,
		events:  make([]*models.CheckEvent, 0, maxSize),
	}
}

// Add adds a check event to the cache.
// If the cache is full, the oldest event is removed.
func (c *ResultsCache) Add(event *models.CheckEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	// Trim to max size (keep most recent)
	if len(c.events) > c.maxSize {
		c.events = c.events[len(c.events)-c.maxSize:]
	}
}

// GetLast returns the N most recent events
func (c *ResultsCache) GetLast(n int) []*models.CheckEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.events) {
		n = len(c.events)
	}

	start := len(c.events) - n
	if start < 0 {
		start = 0
	}

	// Copy so callers never race with later Adds
	events := make([]*models.CheckEvent, n)
	copy(events, c.events[start:])
	return events
}

// At returns the i-th oldest cached event, or nil when out of range
func (c *ResultsCache) At(i int) *models.CheckEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.events) {
		return nil
	}
	return c.events[i]
}

// Count returns the current number of cached events
func (c *ResultsCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// MaxSize returns the configured cache capacity
func (c *ResultsCache) MaxSize() int {
	return c.maxSize
}

// Clear empties the cache
func (c *ResultsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make([]*models.CheckEvent, 0, c.maxSize)
}
