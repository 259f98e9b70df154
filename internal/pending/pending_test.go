package pending

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rabarar/wesense-ingester/internal/model"
)

func reading(nodeID model.NodeID, sensorTime time.Time) model.TelemetryReading {
	return model.TelemetryReading{
		NodeID:     nodeID,
		Type:       model.ReadingTemperature,
		Value:      21.5,
		Unit:       "C",
		SensorTime: sensorTime,
	}
}

func TestBuffer_AppendThenDrain(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "pending.json"))
	b.Append(reading(1, time.Now()))
	b.Append(reading(1, time.Now()))

	got := b.Drain(1)
	if len(got) != 2 {
		t.Fatalf("Drain() returned %d readings, want 2", len(got))
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d after drain, want 0", b.Len())
	}
}

func TestBuffer_DrainUnknownNodeIsEmpty(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "pending.json"))
	if got := b.Drain(999); got != nil {
		t.Fatalf("expected nil for unknown node, got %v", got)
	}
}

func TestBuffer_PerNodeBoundDropsOldest(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "pending.json"), WithLimits(3, MaxNodes))
	base := time.Now()
	for i := 0; i < 5; i++ {
		r := reading(1, base.Add(time.Duration(i)*time.Second))
		r.Value = float64(i)
		b.Append(r)
	}

	got := b.Drain(1)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Value != 2 || got[2].Value != 4 {
		t.Fatalf("expected oldest two dropped, got %+v", got)
	}
}

func TestBuffer_GlobalCapacityEvictsLRU(t *testing.T) {
	var evicted []model.NodeID
	b := New(filepath.Join(t.TempDir(), "pending.json"),
		WithLimits(MaxPerNode, 2),
		WithNodeEvictionCallback(func(id model.NodeID) { evicted = append(evicted, id) }))

	b.Append(reading(1, time.Now()))
	b.Append(reading(2, time.Now()))
	b.Append(reading(3, time.Now())) // evicts node 1, the LRU node

	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("expected node 1 evicted, got %v", evicted)
	}
	if got := b.Drain(1); got != nil {
		t.Fatalf("node 1 should have been evicted, got %v", got)
	}
	if got := b.Drain(3); len(got) != 1 {
		t.Fatalf("node 3 should still be present, got %v", got)
	}
}

func TestBuffer_GlobalCapacityTouchKeepsNodeAlive(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "pending.json"), WithLimits(MaxPerNode, 2))

	b.Append(reading(1, time.Now()))
	b.Append(reading(2, time.Now()))
	b.Append(reading(1, time.Now())) // touches node 1, making node 2 the LRU
	b.Append(reading(3, time.Now())) // should evict node 2, not node 1

	if got := b.Drain(1); len(got) != 2 {
		t.Fatalf("node 1 should have survived with 2 readings, got %v", got)
	}
	if got := b.Drain(2); got != nil {
		t.Fatalf("node 2 should have been evicted, got %v", got)
	}
}

func TestBuffer_DrainExcludesExpiredEntries(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	clock := base
	b := New(filepath.Join(t.TempDir(), "pending.json"), WithClock(func() time.Time { return clock }))

	b.Append(reading(1, base))
	clock = base.Add(2 * time.Hour)
	b.Append(reading(1, clock))

	got := b.Drain(1)
	if len(got) != 1 {
		t.Fatalf("expected only the fresh reading to survive, got %d", len(got))
	}
}

func TestBuffer_Sweep(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	clock := base
	b := New(filepath.Join(t.TempDir(), "pending.json"), WithClock(func() time.Time { return clock }))

	b.Append(reading(1, base))
	b.Append(reading(2, base))

	clock = base.Add(2 * time.Hour)
	removed := b.Sweep()
	if removed != 2 {
		t.Fatalf("Sweep() removed %d, want 2", removed)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d after sweep, want 0", b.Len())
	}
}

func TestBuffer_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	now := time.Now().UTC().Truncate(time.Second)

	b := New(path)
	b.Append(reading(1, now))
	b.Append(reading(1, now.Add(time.Second)))

	if err := b.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := New(path)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := restored.Drain(1)
	if len(got) != 2 {
		t.Fatalf("expected 2 readings to round-trip, got %d", len(got))
	}
}

func TestBuffer_LoadDiscardsExpiredAndFutureSkewed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	now := time.Now()

	b := New(path)
	b.Append(reading(1, now))                       // fine
	b.Append(reading(2, now.Add(time.Hour)))         // rejected by the timestamp guard on load
	if err := b.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := New(path)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (future-skewed entry discarded)", restored.Len())
	}
	if got := restored.Drain(2); got != nil {
		t.Fatalf("node 2's reading should have been discarded on load")
	}
}

func TestBuffer_LoadMissingFileIsNotError(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err := b.Load(); err != nil {
		t.Fatalf("Load() on missing file should not error: %v", err)
	}
}

func TestBuffer_ShouldSnapshot_UpdateCountThreshold(t *testing.T) {
	base := time.Now()
	b := New(filepath.Join(t.TempDir(), "pending.json"),
		WithClock(func() time.Time { return base }),
		WithSnapshotPolicy(2, time.Hour))

	b.Append(reading(1, base))
	if b.ShouldSnapshot() {
		t.Fatalf("should not need a snapshot after 1 update with threshold 2")
	}
	b.Append(reading(2, base))
	if !b.ShouldSnapshot() {
		t.Fatalf("should need a snapshot after 2 updates with threshold 2")
	}
}
