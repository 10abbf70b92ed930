// Package cache holds translated message text for one chat session.
//
// Entries are keyed by (message id, language) and written once per key.
// There is no eviction: the cache lives exactly as long as the session that
// owns it and is dropped when the guest leaves the room.
package cache

import (
	"sync"
)

type Key struct {
	MessageID string
	Language  string
}

// Entry is a settled translation. Failed entries hold the original text
// with a failure suffix and are never retried.
type Entry struct {
	Text   string
	Failed bool
}

type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[Key]Entry)}
}

func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// PutAll merges a batch in a single step. On key collision the incoming entry wins.
func (c *Cache) PutAll(batch map[Key]Entry) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range batch {
		c.entries[k] = e
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry. Used on session teardown.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]Entry)
}
