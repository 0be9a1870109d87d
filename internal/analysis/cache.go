package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
)

// Request is one unit of analysis work: a position fingerprint at a
// requested depth. Immutable once submitted.
type Request struct {
	Fingerprint string
	Depth       int
	Created     time.Time
}

// Key identifies duplicate work: equal fingerprint and depth attach to
// the same cache entry.
type Key struct {
	Fingerprint string
	Depth       int
}

// Entry is a pending or completed analysis future. All waiters on the
// same key share one entry, so a key has at most one outstanding
// search at any time.
type Entry struct {
	key  Key
	done chan struct{}
	res  engine.Result
	err  error
}

// Done is closed once the entry completes or is rejected.
func (e *Entry) Done() <-chan struct{} { return e.done }

// Wait blocks until the entry resolves.
func (e *Entry) Wait(ctx context.Context) (engine.Result, error) {
	select {
	case <-e.done:
		return e.res, e.err
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}

// Cache maps (fingerprint, depth) to pending or completed results.
// Entries never expire within a session; they are removed only when a
// search fails to reach its requested depth or is rejected outright.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// Get returns the existing entry for a key, if any.
func (c *Cache) Get(fingerprint string, depth int) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key{fingerprint, depth}]
	return e, ok
}

// GetOrCreate returns the entry for a key, creating a pending one when
// absent. The second return is true only for the caller that created
// the entry and therefore owns performing the work; the check-and-create
// is atomic so no two callers both believe they created it.
func (c *Cache) GetOrCreate(fingerprint string, depth int) (*Entry, bool) {
	key := Key{fingerprint, depth}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e, false
	}
	e := &Entry{key: key, done: make(chan struct{})}
	c.entries[key] = e
	return e, true
}

// Resolve stores a terminal result if the search actually reached the
// requested depth, or ended early on a forced mate. Otherwise the entry
// is removed and all waiters are rejected with ErrDepthNotReached.
func (c *Cache) Resolve(fingerprint string, depth int, res engine.Result) {
	key := Key{fingerprint, depth}
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || completed(e) {
		c.mu.Unlock()
		return
	}
	if res.Last.Depth >= depth || res.Last.Score.IsMate() {
		e.res = res
		close(e.done)
		c.mu.Unlock()
		return
	}
	delete(c.entries, key)
	e.err = fmt.Errorf("%w: reached %d of %d", ErrDepthNotReached, res.Last.Depth, depth)
	close(e.done)
	c.mu.Unlock()
}

// Reject removes the entry and fails all waiters with err.
func (c *Cache) Reject(fingerprint string, depth int, err error) {
	key := Key{fingerprint, depth}
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || completed(e) {
		c.mu.Unlock()
		return
	}
	delete(c.entries, key)
	e.err = err
	close(e.done)
	c.mu.Unlock()
}

// Len returns the number of entries, pending and completed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func completed(e *Entry) bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
