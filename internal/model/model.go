// Package model holds the data types shared across the ingestion pipeline:
// node identity, positions, telemetry readings, and the correlated records
// that the sink writes.
package model

import (
	"fmt"
	"time"
)

// NodeID is the raw 32-bit Meshtastic node identity used as the join key
// throughout the pipeline.
type NodeID uint32

// DeviceID renders the node id as the downstream-facing device identifier,
// e.g. "meshtastic_a1b2c3d4".
func (n NodeID) DeviceID() string {
	return fmt.Sprintf("meshtastic_%08x", uint32(n))
}

// RegionTag names the upstream MQTT subscription a packet arrived on, e.g.
// "ANZ", "US", "EU_868". It is carried for diagnostics only.
type RegionTag string

// ReadingType enumerates the closed set of environmental telemetry metrics
// this ingester will correlate and archive.
type ReadingType string

const (
	ReadingTemperature  ReadingType = "temperature"
	ReadingHumidity     ReadingType = "humidity"
	ReadingPressure     ReadingType = "pressure"
	ReadingCO2          ReadingType = "co2"
	ReadingVOC          ReadingType = "voc"
	ReadingPM25         ReadingType = "pm2_5"
	ReadingPM10         ReadingType = "pm10"
	ReadingLux          ReadingType = "lux"
	ReadingWindSpeed    ReadingType = "wind_speed"
	ReadingWindDir      ReadingType = "wind_direction"
	ReadingRainfall     ReadingType = "rainfall"
	ReadingIAQ          ReadingType = "iaq"
)

// Position is a node's last-known geographic fix.
type Position struct {
	NodeID        NodeID
	Latitude      float64
	Longitude     float64
	Altitude      *int32
	HardwareModel int32
	NodeName      string
	ReceivedAt    time.Time
}

// HardwareModelName returns the friendly display name for the position's
// hardware model, falling back to "hw_" plus the numeric enum value when the
// model isn't in the lookup table.
func (p Position) HardwareModelName() string {
	return HardwareModelDisplayName(p.HardwareModel)
}

// TelemetryReading is a single environmental measurement declared by a node.
type TelemetryReading struct {
	NodeID     NodeID
	Type       ReadingType
	Value      float64
	Unit       string
	SensorTime time.Time
	Region     RegionTag
}

// EnrichedRecord is the correlated output: a telemetry reading joined with
// the position known for its node, plus resolved geography. It is never
// persisted by the ingester itself — it is produced, written to the sink,
// and discarded.
type EnrichedRecord struct {
	DeviceID           string
	NodeID             NodeID
	NodeName           string
	HardwareModel      string
	ReadingType        ReadingType
	Value              float64
	Unit               string
	Latitude           float64
	Longitude          float64
	Altitude           *int32
	CountryCode        string
	SubdivisionCode    string
	DataSource         string
	IngestionNodeID    string
	SensorTime         time.Time
	ReceivedAt         time.Time
	PositionReceivedAt time.Time
	PositionAgeSeconds float64
	Region             RegionTag
}

// DataSourceMeshtastic is the fixed data_source tag for every record this
// ingester emits.
const DataSourceMeshtastic = "MESHTASTIC"

// UnknownGeoCode is the placeholder used for an unresolved country or
// subdivision code, both in emitted records and in republish topics.
const UnknownGeoCode = "unknown"
