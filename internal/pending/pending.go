// Package pending implements the Pending Telemetry Buffer (SPEC_FULL.md
// §4.E): telemetry that arrived before any position was known for its
// node, held until a position shows up or the entry ages out. It is owned
// exclusively by the Correlator, same as the Position Cache.
package pending

import (
	"container/list"
	"sync"
	"time"

	"github.com/rabarar/wesense-ingester/internal/model"
)

const (
	// TTL is the maximum age a buffered reading may reach before it is
	// discarded regardless of whether a position ever arrives.
	TTL = 1 * time.Hour
	// MaxPerNode bounds how many readings are held for a single node; the
	// oldest is dropped when a new one arrives at capacity.
	MaxPerNode = 50
	// MaxNodes bounds how many distinct nodes may have a pending queue at
	// once; the least-recently-touched node is evicted at capacity.
	MaxNodes = 10_000
)

type buffered struct {
	reading    model.TelemetryReading
	bufferedAt time.Time
}

type nodeQueue struct {
	readings []buffered
	elem     *list.Element // position in the global LRU list
}

// Buffer is the pending telemetry buffer.
type Buffer struct {
	mu         sync.Mutex
	nodes      map[model.NodeID]*nodeQueue
	lru        *list.List // front = most recently touched
	maxPerNode int
	maxNodes   int
	ttl        time.Duration
	clock      func() time.Time

	path             string
	snapshotEvery    int
	snapshotInterval time.Duration
	updatesSinceSave int
	lastSave         time.Time

	onNodeEvicted func(model.NodeID)
}

// Option configures a Buffer.
type Option func(*Buffer)

func WithClock(clock func() time.Time) Option {
	return func(b *Buffer) { b.clock = clock }
}

func WithLimits(maxPerNode, maxNodes int) Option {
	return func(b *Buffer) {
		b.maxPerNode = maxPerNode
		b.maxNodes = maxNodes
	}
}

func WithSnapshotPolicy(n int, interval time.Duration) Option {
	return func(b *Buffer) {
		b.snapshotEvery = n
		b.snapshotInterval = interval
	}
}

// WithNodeEvictionCallback registers a hook fired when a node's pending
// queue is evicted for global capacity, for metrics.
func WithNodeEvictionCallback(fn func(model.NodeID)) Option {
	return func(b *Buffer) { b.onNodeEvicted = fn }
}

func New(path string, opts ...Option) *Buffer {
	b := &Buffer{
		nodes:            make(map[model.NodeID]*nodeQueue),
		lru:              list.New(),
		maxPerNode:       MaxPerNode,
		maxNodes:         MaxNodes,
		ttl:              TTL,
		clock:            time.Now,
		snapshotEvery:    100,
		snapshotInterval: 5 * time.Minute,
		path:             path,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastSave = b.clock()
	return b
}

// Append adds a telemetry reading to its node's pending queue. If the
// node's queue is already at MaxPerNode, the oldest buffered reading is
// dropped. If adding a brand-new node's queue would exceed MaxNodes, the
// least-recently-touched node's entire queue is evicted first.
func (b *Buffer) Append(reading model.TelemetryReading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.nodes[reading.NodeID]
	if !ok {
		if len(b.nodes) >= b.maxNodes {
			b.evictLRULocked()
		}
		elem := b.lru.PushFront(reading.NodeID)
		q = &nodeQueue{elem: elem}
		b.nodes[reading.NodeID] = q
	} else {
		b.lru.MoveToFront(q.elem)
	}

	q.readings = append(q.readings, buffered{reading: reading, bufferedAt: b.clock()})
	if len(q.readings) > b.maxPerNode {
		q.readings = q.readings[len(q.readings)-b.maxPerNode:]
	}

	b.updatesSinceSave++
}

func (b *Buffer) evictLRULocked() {
	back := b.lru.Back()
	if back == nil {
		return
	}
	nodeID := back.Value.(model.NodeID)
	b.lru.Remove(back)
	delete(b.nodes, nodeID)
	if b.onNodeEvicted != nil {
		b.onNodeEvicted(nodeID)
	}
}

// Drain removes and returns every non-expired reading buffered for a node,
// in arrival order, clearing its queue. Called when a position arrives for
// that node.
func (b *Buffer) Drain(nodeID model.NodeID) []model.TelemetryReading {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.nodes[nodeID]
	if !ok {
		return nil
	}
	now := b.clock()
	out := make([]model.TelemetryReading, 0, len(q.readings))
	for _, r := range q.readings {
		if now.Sub(r.bufferedAt) > b.ttl {
			continue
		}
		out = append(out, r.reading)
	}

	b.lru.Remove(q.elem)
	delete(b.nodes, nodeID)
	return out
}

// Sweep removes expired readings across all nodes, dropping any node whose
// queue becomes empty as a result. O(n) in the total number of buffered
// readings.
func (b *Buffer) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	removed := 0
	for nodeID, q := range b.nodes {
		kept := q.readings[:0]
		for _, r := range q.readings {
			if now.Sub(r.bufferedAt) > b.ttl {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		q.readings = kept
		if len(q.readings) == 0 {
			b.lru.Remove(q.elem)
			delete(b.nodes, nodeID)
		}
	}
	return removed
}

// Len reports the number of nodes with a pending queue.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}

// ShouldSnapshot reports whether the durability policy's thresholds have
// been crossed since the last snapshot.
func (b *Buffer) ShouldSnapshot() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updatesSinceSave >= b.snapshotEvery {
		return true
	}
	return b.clock().Sub(b.lastSave) >= b.snapshotInterval
}

func (b *Buffer) markSnapshotted() {
	b.mu.Lock()
	b.updatesSinceSave = 0
	b.lastSave = b.clock()
	b.mu.Unlock()
}
