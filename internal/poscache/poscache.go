// Package poscache implements the per-node position cache (SPEC_FULL.md
// §4.D): last-known coordinates with a 7-day TTL, snapshotted to disk on a
// cadence and on shutdown. It is exclusively owned by the Correlator — no
// other goroutine touches its map — so a plain mutex-guarded map is used
// rather than a concurrent cache; the mutex only ever guards the rare
// snapshot-vs-mutate race, never network or disk I/O while held.
package poscache

import (
	"sync"
	"time"

	"github.com/rabarar/wesense-ingester/internal/model"
)

// TTL is how long a position remains valid after it was last observed.
const TTL = 7 * 24 * time.Hour

// SweepInterval is how often a periodic sweep removes expired entries,
// independent of access-time expiry checks.
const SweepInterval = 5 * time.Minute

type entry struct {
	position model.Position
}

// Cache is the per-node position cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.NodeID]entry
	ttl     time.Time
	clock   func() time.Time

	path             string
	snapshotEvery    int
	snapshotInterval time.Duration
	updatesSinceSave int
	lastSave         time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for expiry calculations; intended for
// tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithSnapshotPolicy sets the durability thresholds: ShouldSnapshot reports
// true once n Put calls have been made, or interval has elapsed, since the
// last snapshot (SPEC_FULL.md §4.D defaults: n=100, interval=5m). The cache
// never snapshots on its own; the caller polls ShouldSnapshot.
func WithSnapshotPolicy(n int, interval time.Duration) Option {
	return func(c *Cache) {
		c.snapshotEvery = n
		c.snapshotInterval = interval
	}
}

// New creates an empty Cache that snapshots to path.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		entries:          make(map[model.NodeID]entry),
		path:             path,
		clock:            time.Now,
		snapshotEvery:    100,
		snapshotInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSave = c.clock()
	return c
}

// Put overwrites (or creates) the position for a node. It is O(1).
func (c *Cache) Put(pos model.Position) {
	c.mu.Lock()
	c.entries[pos.NodeID] = entry{position: pos}
	c.updatesSinceSave++
	c.mu.Unlock()
}

// Get returns the cached position for a node, or false if there is none or
// it has expired. It is O(1).
func (c *Cache) Get(nodeID model.NodeID) (model.Position, bool) {
	c.mu.RLock()
	e, ok := c.entries[nodeID]
	c.mu.RUnlock()
	if !ok {
		return model.Position{}, false
	}
	if c.expired(e.position) {
		return model.Position{}, false
	}
	return e.position, true
}

// UpdateNodeInfo applies a NODEINFO update (hardware model, long name) to
// an already-cached position. It never creates a position from nothing —
// a miss is a silent no-op, per SPEC_FULL.md §4.F.
func (c *Cache) UpdateNodeInfo(nodeID model.NodeID, longName string, hardwareModel int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nodeID]
	if !ok || c.expired(e.position) {
		return
	}
	if longName != "" {
		e.position.NodeName = longName
	}
	e.position.HardwareModel = hardwareModel
	c.entries[nodeID] = e
}

func (c *Cache) expired(p model.Position) bool {
	return c.clock().Sub(p.ReceivedAt) >= TTL
}

// Sweep removes all expired entries. O(n).
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if c.expired(e.position) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently cached, including any that
// have expired but not yet been swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ShouldSnapshot reports whether the durability policy's update-count or
// time thresholds have been crossed since the last snapshot.
func (c *Cache) ShouldSnapshot() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.updatesSinceSave >= c.snapshotEvery {
		return true
	}
	return c.clock().Sub(c.lastSave) >= c.snapshotInterval
}

func (c *Cache) markSnapshotted() {
	c.mu.Lock()
	c.updatesSinceSave = 0
	c.lastSave = c.clock()
	c.mu.Unlock()
}
