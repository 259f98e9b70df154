// Package dedup suppresses mesh-flood duplicates: the same packet arriving
// repeatedly, within seconds, from different gateways that each relayed it.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultTTL is how long a fingerprint is remembered before it is
	// eligible to be seen as "new" again.
	DefaultTTL = 60 * time.Second
	// DefaultCapacity bounds memory against an adversarial flood; once
	// full, the least-recently-seen fingerprint is evicted to make room.
	DefaultCapacity = 100_000
)

// Filter deduplicates packets by (source_node_id, packet_id) fingerprint.
type Filter struct {
	cache    *ttlcache.Cache[string, struct{}]
	onEvict  func()
	onInsert func()
}

// Option configures a Filter.
type Option func(*Filter)

// WithEvictionCallback registers a hook invoked every time a fingerprint is
// evicted for capacity rather than expired for age — useful for a distinct
// "dedup_evicted" metric (SPEC_FULL.md §4.B).
func WithEvictionCallback(fn func()) Option {
	return func(f *Filter) { f.onEvict = fn }
}

func New(ttl time.Duration, capacity uint64, opts ...Option) *Filter {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithCapacity[string, struct{}](capacity),
	)

	f := &Filter{cache: cache}
	for _, opt := range opts {
		opt(f)
	}

	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, struct{}]) {
		if reason == ttlcache.EvictionReasonCapacityReached && f.onEvict != nil {
			f.onEvict()
		}
	})

	go cache.Start()
	return f
}

func fingerprint(sourceNodeID, packetID uint32) string {
	return fmt.Sprintf("%d:%d", sourceNodeID, packetID)
}

// Seen reports whether (sourceNodeID, packetID) has already been observed
// within the dedup window. On a miss, it records the fingerprint and
// returns false; on a hit, it returns true without updating the entry's
// TTL (flood duplicates should not extend their own suppression window
// indefinitely).
func (f *Filter) Seen(sourceNodeID, packetID uint32) bool {
	key := fingerprint(sourceNodeID, packetID)
	if item := f.cache.Get(key, ttlcache.WithDisableTouchOnHit[string, struct{}]()); item != nil {
		return true
	}
	f.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return false
}

// Len reports the current number of tracked fingerprints.
func (f *Filter) Len() int {
	return f.cache.Len()
}

// Stop halts the background expiration goroutine. Call during shutdown.
func (f *Filter) Stop() {
	f.cache.Stop()
}
