// Package correlator implements the single-consumer join stage of the
// pipeline (SPEC_FULL.md §4.F): it owns the Position Cache and Pending
// Buffer outright, so every method here runs on one goroutine and never
// takes a lock across I/O.
package correlator

import (
	"time"

	"github.com/rabarar/wesense-ingester/internal/decode"
	"github.com/rabarar/wesense-ingester/internal/model"
	"github.com/rabarar/wesense-ingester/internal/pending"
	"github.com/rabarar/wesense-ingester/internal/poscache"
)

// Geocoder resolves a coordinate to a country/subdivision pair. The
// correlator only ever calls the cache-only synchronous path; a miss
// returns model.UnknownGeoCode for both and queues async resolution
// elsewhere (SPEC_FULL.md §4.G).
type Geocoder interface {
	Resolve(lat, lon float64) (countryCode, subdivisionCode string)
}

// Sink accepts a correlated record for batching and eventual write.
type Sink interface {
	Submit(record model.EnrichedRecord)
}

// Correlator joins telemetry readings against known positions.
type Correlator struct {
	positions       *poscache.Cache
	pendingBuf      *pending.Buffer
	geocoder        Geocoder
	sink            Sink
	ingestionNodeID string
	clock           func() time.Time
}

// Option configures a Correlator.
type Option func(*Correlator)

func WithClock(clock func() time.Time) Option {
	return func(c *Correlator) { c.clock = clock }
}

func New(positions *poscache.Cache, pendingBuf *pending.Buffer, geocoder Geocoder, sink Sink, ingestionNodeID string, opts ...Option) *Correlator {
	c := &Correlator{
		positions:       positions,
		pendingBuf:      pendingBuf,
		geocoder:        geocoder,
		sink:            sink,
		ingestionNodeID: ingestionNodeID,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandlePacket dispatches a decoded packet to the appropriate policy. It is
// the only entry point callers need; HandlePosition/HandleTelemetry/
// HandleNodeInfo remain exported for direct use in tests.
func (c *Correlator) HandlePacket(p *decode.Packet) {
	switch p.Kind {
	case decode.KindPosition:
		c.HandlePosition(*p.Position)
	case decode.KindTelemetry:
		c.HandleTelemetry(*p.Telemetry)
	case decode.KindNodeInfo:
		c.HandleNodeInfo(*p.NodeInfo)
	}
}

// HandlePosition upserts the position, then drains and emits every reading
// that was waiting on it.
func (c *Correlator) HandlePosition(pos model.Position) {
	c.positions.Put(pos)
	for _, r := range c.pendingBuf.Drain(pos.NodeID) {
		c.emit(r, pos)
	}
}

// HandleTelemetry joins against a cached position if one exists and isn't
// expired, otherwise buffers the reading for a later position arrival.
func (c *Correlator) HandleTelemetry(r model.TelemetryReading) {
	if pos, ok := c.positions.Get(r.NodeID); ok {
		c.emit(r, pos)
		return
	}
	c.pendingBuf.Append(r)
}

// HandleNodeInfo updates an already-cached position's hardware model and
// long name. It never creates a position from nothing.
func (c *Correlator) HandleNodeInfo(update decode.NodeInfoUpdate) {
	c.positions.UpdateNodeInfo(update.NodeID, update.LongName, update.HardwareModel)
}

func (c *Correlator) emit(r model.TelemetryReading, pos model.Position) {
	country, subdivision := c.geocoder.Resolve(pos.Latitude, pos.Longitude)

	rec := model.EnrichedRecord{
		DeviceID:           r.NodeID.DeviceID(),
		NodeID:             r.NodeID,
		NodeName:           pos.NodeName,
		HardwareModel:      pos.HardwareModelName(),
		ReadingType:        r.Type,
		Value:              r.Value,
		Unit:               r.Unit,
		Latitude:           pos.Latitude,
		Longitude:          pos.Longitude,
		Altitude:           pos.Altitude,
		CountryCode:        country,
		SubdivisionCode:    subdivision,
		DataSource:         model.DataSourceMeshtastic,
		IngestionNodeID:    c.ingestionNodeID,
		SensorTime:         r.SensorTime,
		ReceivedAt:         c.clock(),
		PositionReceivedAt: pos.ReceivedAt,
		PositionAgeSeconds: r.SensorTime.Sub(pos.ReceivedAt).Seconds(),
		Region:             r.Region,
	}
	c.sink.Submit(rec)
}
