package geocode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rabarar/wesense-ingester/internal/model"
)

func TestCache_ResolveMissReturnsUnknownImmediately(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "geocode.json"), nil)
	country, subdivision := c.Resolve(-33.87, 151.21)
	if country != model.UnknownGeoCode || subdivision != model.UnknownGeoCode {
		t.Fatalf("got %q, %q", country, subdivision)
	}
}

func TestCache_ResolveAfterBackgroundJobCompletes(t *testing.T) {
	g, err := LoadGazetteer()
	if err != nil {
		t.Fatalf("LoadGazetteer: %v", err)
	}
	c := New(filepath.Join(t.TempDir(), "geocode.json"), g)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	country, _ := c.Resolve(-33.87, 151.21)
	if country != model.UnknownGeoCode {
		t.Fatalf("expected first call to miss, got %q", country)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if country, subdivision := c.Resolve(-33.87, 151.21); country == "au" {
			if subdivision != "nsw" {
				t.Fatalf("expected nsw subdivision, got %q", subdivision)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("background resolve never completed")
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geocode.json")
	c := New(path, nil)

	c.mu.Lock()
	c.entries["37.775,-122.419"] = geoResult{CountryCode: "us", SubdivisionCode: "ca"}
	c.mu.Unlock()

	if err := c.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := New(path, nil)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", restored.Len())
	}
	country, subdivision := restored.Resolve(37.775, -122.419)
	if country != "us" || subdivision != "ca" {
		t.Fatalf("got %q, %q", country, subdivision)
	}
}

func TestCache_LoadMissingFileIsNotError(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "does-not-exist.json"), nil)
	if err := c.Load(); err != nil {
		t.Fatalf("Load() on missing file should not error: %v", err)
	}
}

func TestCache_DuplicateMissesDoNotDoubleEnqueue(t *testing.T) {
	g, err := LoadGazetteer()
	if err != nil {
		t.Fatalf("LoadGazetteer: %v", err)
	}
	c := New(filepath.Join(t.TempDir(), "geocode.json"), g, WithQueueSize(1))

	// Fires twice for the same rounded key before any worker drains the
	// queue; the second call must see the key already pending and skip
	// enqueueing a duplicate job rather than blocking or dropping.
	c.Resolve(-33.87, 151.21)
	c.Resolve(-33.87, 151.21)

	if len(c.jobs) != 1 {
		t.Fatalf("expected exactly one queued job, got %d", len(c.jobs))
	}
}
