package poscache

import (
	"fmt"
	"os"
	"time"

	"github.com/rabarar/wesense-ingester/internal/atomicfile"
	"github.com/rabarar/wesense-ingester/internal/model"
)

// snapshotRecord is the on-disk JSON shape for a single cached position.
type snapshotRecord struct {
	NodeID        model.NodeID `json:"node_id"`
	Latitude      float64      `json:"latitude"`
	Longitude     float64      `json:"longitude"`
	Altitude      *int32       `json:"altitude,omitempty"`
	HardwareModel int32        `json:"hardware_model,omitempty"`
	NodeName      string       `json:"node_name,omitempty"`
	ReceivedAt    time.Time    `json:"received_at"`
}

// Snapshot writes the current cache contents to disk atomically: the file
// is written to a temp path in the same directory, then renamed over the
// target, so a crash mid-write never leaves a truncated snapshot.
func (c *Cache) Snapshot() error {
	c.mu.RLock()
	records := make([]snapshotRecord, 0, len(c.entries))
	for _, e := range c.entries {
		p := e.position
		records = append(records, snapshotRecord{
			NodeID:        p.NodeID,
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
			Altitude:      p.Altitude,
			HardwareModel: p.HardwareModel,
			NodeName:      p.NodeName,
			ReceivedAt:    p.ReceivedAt,
		})
	}
	c.mu.RUnlock()

	if err := atomicfile.WriteJSON(c.path, records); err != nil {
		return fmt.Errorf("poscache: %w", err)
	}
	c.markSnapshotted()
	return nil
}

// Load reads a previously-written snapshot, if present, discarding any
// entries that have already expired. A missing file is not an error — a
// fresh deployment simply starts with an empty cache.
func (c *Cache) Load() error {
	var records []snapshotRecord
	if err := atomicfile.ReadJSON(c.path, &records); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("poscache: loading snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for _, r := range records {
		pos := model.Position{
			NodeID:        r.NodeID,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
			Altitude:      r.Altitude,
			HardwareModel: r.HardwareModel,
			NodeName:      r.NodeName,
			ReceivedAt:    r.ReceivedAt,
		}
		if now.Sub(pos.ReceivedAt) >= TTL {
			continue
		}
		c.entries[pos.NodeID] = entry{position: pos}
	}
	return nil
}
