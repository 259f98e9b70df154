package geocode

import (
	"fmt"
	"os"

	"github.com/rabarar/wesense-ingester/internal/atomicfile"
)

// snapshotRecord is the on-disk JSON shape for a single resolved locality.
type snapshotRecord struct {
	Key             string `json:"key"`
	CountryCode     string `json:"country_code"`
	SubdivisionCode string `json:"subdivision_code"`
}

// Snapshot writes the L1 cache to disk atomically.
func (c *Cache) Snapshot() error {
	c.mu.RLock()
	records := make([]snapshotRecord, 0, len(c.entries))
	for key, r := range c.entries {
		records = append(records, snapshotRecord{Key: key, CountryCode: r.CountryCode, SubdivisionCode: r.SubdivisionCode})
	}
	c.mu.RUnlock()

	if err := atomicfile.WriteJSON(c.path, records); err != nil {
		return fmt.Errorf("geocode: %w", err)
	}
	return nil
}

// Load reads a previously-written L1 snapshot, if present. A missing file
// is not an error — a fresh deployment starts with an empty cache and
// resolves everything through L2 again.
func (c *Cache) Load() error {
	var records []snapshotRecord
	if err := atomicfile.ReadJSON(c.path, &records); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("geocode: loading snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.entries[r.Key] = geoResult{CountryCode: r.CountryCode, SubdivisionCode: r.SubdivisionCode}
	}
	return nil
}
