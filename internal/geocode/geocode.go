// Package geocode implements the reverse geocoder (SPEC_FULL.md §4.G): a
// persisted L1 cache keyed by rounded coordinates, backed by an offline
// gazetteer and an online fallback. The synchronous path the correlator
// calls is cache-only; a miss schedules a background resolve job and
// answers immediately with the unknown placeholder.
package geocode

import (
	"context"
	"fmt"
	"sync"

	"github.com/rabarar/wesense-ingester/internal/model"
)

// coordinatePrecision is the number of decimal places coordinates are
// rounded to for the L1 cache key, roughly 100m of ground resolution.
const coordinatePrecision = 3

type geoResult struct {
	CountryCode     string
	SubdivisionCode string
}

type resolveJob struct {
	key      string
	lat, lon float64
}

// Cache is the reverse geocoder's L1 cache plus its L2 resolve pipeline.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]geoResult
	pendingKeys map[string]bool

	path string

	gazetteer *Gazetteer
	online    OnlineResolver

	jobs chan resolveJob

	onJobDropped   func()
	onUnknownName  func(name string)
	onResolveError func(err error)
}

// Option configures a Cache.
type Option func(*Cache)

func WithOnlineResolver(r OnlineResolver) Option {
	return func(c *Cache) { c.online = r }
}

func WithQueueSize(n int) Option {
	return func(c *Cache) { c.jobs = make(chan resolveJob, n) }
}

// WithJobDroppedCallback registers a hook fired when the async resolve
// queue is full and a job is dropped, for metrics.
func WithJobDroppedCallback(fn func()) Option {
	return func(c *Cache) { c.onJobDropped = fn }
}

// WithUnknownNameCallback registers a hook fired when a resolver returns a
// country or admin1 name that isn't in the static conversion tables.
func WithUnknownNameCallback(fn func(name string)) Option {
	return func(c *Cache) { c.onUnknownName = fn }
}

// WithResolveErrorCallback registers a hook fired when the online resolver
// returns an error (network failure, rate limiter context cancellation).
func WithResolveErrorCallback(fn func(err error)) Option {
	return func(c *Cache) { c.onResolveError = fn }
}

// New creates a Cache. gazetteer may be nil (no offline layer); online may
// be nil (no fallback beyond the gazetteer).
func New(path string, gazetteer *Gazetteer, opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[string]geoResult),
		pendingKeys: make(map[string]bool),
		path:        path,
		gazetteer:   gazetteer,
		jobs:        make(chan resolveJob, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve is the synchronous, cache-only lookup the correlator calls
// inline. A miss enqueues a background resolve job (deduplicated per
// locality key) and returns the unknown placeholder for both codes.
func (c *Cache) Resolve(lat, lon float64) (countryCode, subdivisionCode string) {
	key := roundKey(lat, lon)

	c.mu.RLock()
	r, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return r.CountryCode, r.SubdivisionCode
	}

	c.enqueueResolve(key, lat, lon)
	return model.UnknownGeoCode, model.UnknownGeoCode
}

func (c *Cache) enqueueResolve(key string, lat, lon float64) {
	c.mu.Lock()
	if c.pendingKeys[key] {
		c.mu.Unlock()
		return
	}
	c.pendingKeys[key] = true
	c.mu.Unlock()

	select {
	case c.jobs <- resolveJob{key: key, lat: lat, lon: lon}:
	default:
		c.mu.Lock()
		delete(c.pendingKeys, key)
		c.mu.Unlock()
		if c.onJobDropped != nil {
			c.onJobDropped()
		}
	}
}

// Run processes resolve jobs until ctx is cancelled. It is meant to run on
// its own goroutine for the lifetime of the process.
func (c *Cache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.jobs:
			c.resolveJob(ctx, job)
		}
	}
}

func (c *Cache) resolveJob(ctx context.Context, job resolveJob) {
	defer func() {
		c.mu.Lock()
		delete(c.pendingKeys, job.key)
		c.mu.Unlock()
	}()

	countryName, admin1Name, ok := "", "", false
	if c.gazetteer != nil {
		countryName, admin1Name, ok = c.gazetteer.Lookup(job.lat, job.lon)
	}
	if !ok && c.online != nil {
		var err error
		countryName, admin1Name, err = c.online.Resolve(ctx, job.lat, job.lon)
		if err != nil {
			if c.onResolveError != nil {
				c.onResolveError(fmt.Errorf("geocode: online resolve: %w", err))
			}
			return
		}
	}
	if countryName == "" {
		return
	}

	result := geoResult{CountryCode: model.UnknownGeoCode, SubdivisionCode: model.UnknownGeoCode}
	if code, known := CountryCode(countryName); known {
		result.CountryCode = code
		if sub, known := SubdivisionCode(code, admin1Name); known {
			result.SubdivisionCode = sub
		} else if c.onUnknownName != nil {
			c.onUnknownName(admin1Name)
		}
	} else if c.onUnknownName != nil {
		c.onUnknownName(countryName)
	}

	c.mu.Lock()
	c.entries[job.key] = result
	c.mu.Unlock()
}

// Len reports how many localities are currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func roundKey(lat, lon float64) string {
	return fmt.Sprintf("%.*f,%.*f", coordinatePrecision, lat, coordinatePrecision, lon)
}
