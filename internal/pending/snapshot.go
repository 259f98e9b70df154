package pending

import (
	"fmt"
	"os"
	"time"

	"github.com/rabarar/wesense-ingester/internal/atomicfile"
	"github.com/rabarar/wesense-ingester/internal/guard"
	"github.com/rabarar/wesense-ingester/internal/model"
)

// snapshotRecord is the on-disk JSON shape for a single buffered reading.
type snapshotRecord struct {
	NodeID     model.NodeID      `json:"node_id"`
	Type       model.ReadingType `json:"type"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	SensorTime time.Time         `json:"sensor_time"`
	Region     model.RegionTag   `json:"region,omitempty"`
	BufferedAt time.Time         `json:"buffered_at"`
}

// Snapshot writes the current buffer contents to disk atomically.
func (b *Buffer) Snapshot() error {
	b.mu.Lock()
	var records []snapshotRecord
	for _, q := range b.nodes {
		for _, r := range q.readings {
			records = append(records, snapshotRecord{
				NodeID:     r.reading.NodeID,
				Type:       r.reading.Type,
				Value:      r.reading.Value,
				Unit:       r.reading.Unit,
				SensorTime: r.reading.SensorTime,
				Region:     r.reading.Region,
				BufferedAt: r.bufferedAt,
			})
		}
	}
	b.mu.Unlock()

	if err := atomicfile.WriteJSON(b.path, records); err != nil {
		return fmt.Errorf("pending: %w", err)
	}
	b.markSnapshotted()
	return nil
}

// Load reads a previously-written snapshot, if present. Each entry passes
// back through the Timestamp Guard and the buffer's own age filter before
// being accepted, exactly as a freshly-arrived reading would, so a stale or
// clock-skewed snapshot can never resurrect bad data.
func (b *Buffer) Load() error {
	var records []snapshotRecord
	if err := atomicfile.ReadJSON(b.path, &records); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pending: loading snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	for _, r := range records {
		if now.Sub(r.BufferedAt) > b.ttl {
			continue
		}
		if !guard.Check(r.SensorTime, now).Accepted {
			continue
		}

		q, ok := b.nodes[r.NodeID]
		if !ok {
			if len(b.nodes) >= b.maxNodes {
				b.evictLRULocked()
			}
			elem := b.lru.PushFront(r.NodeID)
			q = &nodeQueue{elem: elem}
			b.nodes[r.NodeID] = q
		}
		q.readings = append(q.readings, buffered{
			reading: model.TelemetryReading{
				NodeID:     r.NodeID,
				Type:       r.Type,
				Value:      r.Value,
				Unit:       r.Unit,
				SensorTime: r.SensorTime,
				Region:     r.Region,
			},
			bufferedAt: r.BufferedAt,
		})
		if len(q.readings) > b.maxPerNode {
			q.readings = q.readings[len(q.readings)-b.maxPerNode:]
		}
	}
	return nil
}
