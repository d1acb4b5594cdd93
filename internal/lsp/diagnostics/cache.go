// cache.go caches diagnostics per (uri, version) and debounces
// recomputation while the user is typing.
package diagnostics

import (
	"sync"
	"time"

	"go.lsp.dev/protocol"
)

// Cache stores the latest diagnostics per document. A hit requires an
// exact version match.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	version int32
	diags   []protocol.Diagnostic
}

// NewCache creates an empty diagnostics cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]cacheEntry{}}
}

// Get returns the cached diagnostics for (uri, version); stale versions
// miss.
func (c *Cache) Get(uri string, version int32) ([]protocol.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[uri]
	if !ok || entry.version != version {
		return nil, false
	}
	return entry.diags, true
}

// Latest returns the most recent cached diagnostics regardless of
// version. Used to keep serving results while a recomputation is
// debounced.
func (c *Cache) Latest(uri string) ([]protocol.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[uri]
	if !ok {
		return nil, false
	}
	return entry.diags, true
}

// Put stores diagnostics for (uri, version).
func (c *Cache) Put(uri string, version int32, diags []protocol.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uri] = cacheEntry{version: version, diags: diags}
}

// Drop removes a closed document.
func (c *Cache) Drop(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uri)
}

// Tracker records the last-change time per document and decides whether a
// recomputation should run now or wait for the typing burst to settle.
type Tracker struct {
	mu       sync.Mutex
	debounce time.Duration
	changed  map[string]time.Time

	now func() time.Time // test seam
}

// NewTracker creates a tracker with the given debounce interval.
func NewTracker(debounce time.Duration) *Tracker {
	return &Tracker{
		debounce: debounce,
		changed:  map[string]time.Time{},
		now:      time.Now,
	}
}

// Touch records an edit.
func (t *Tracker) Touch(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changed[uri] = t.now()
}

// ShouldRecompute reports whether the last edit is old enough that
// recomputing now is worthwhile. Very recent edits skip work; the caller
// serves the latest cached result instead.
func (t *Tracker) ShouldRecompute(uri string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.changed[uri]
	if !ok {
		return true
	}
	return t.now().Sub(last) >= t.debounce
}
