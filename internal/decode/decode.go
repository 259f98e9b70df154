// Package decode turns a raw MQTT envelope into one of the packet kinds
// the pipeline understands: a Position, a TelemetryReading, or a NodeInfo
// update. It owns decryption (component A of SPEC_FULL.md §4) and the
// exhaustive dispatch over Meshtastic's tagged-union packet payload.
package decode

import (
	"errors"
	"fmt"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/wesense-ingester/internal/cryptoutil"
	"github.com/rabarar/wesense-ingester/internal/model"
)

// Sentinel, non-fatal decode failures. Every one of these is dropped with a
// counter increment and a debug log line; none is ever retried.
var (
	ErrDecryptFailed     = errors.New("decode: decrypt failed")
	ErrDecodeFailed      = errors.New("decode: protobuf decode failed")
	ErrUnsupportedPacket = errors.New("decode: unsupported packet kind")
)

// Kind identifies which variant a successfully decoded packet carries.
type Kind int

const (
	KindPosition Kind = iota
	KindTelemetry
	KindNodeInfo
)

// Packet is the dispatch result of a successful decode: exactly one of
// Position, Telemetry, or NodeInfo is populated, selected by Kind.
type Packet struct {
	Kind      Kind
	NodeID    model.NodeID
	PacketID  uint32 // mesh packet id, paired with NodeID as the dedup fingerprint
	Region    model.RegionTag
	Position  *model.Position
	Telemetry *model.TelemetryReading
	NodeInfo  *NodeInfoUpdate
}

// NodeInfoUpdate carries the fields a NODEINFO_APP packet can update on an
// already-cached position: hardware model and long name. It never creates a
// position from nothing (SPEC_FULL.md §4.F).
type NodeInfoUpdate struct {
	NodeID        model.NodeID
	LongName      string
	HardwareModel int32
}

// KeySource resolves the decryption key to use for a channel. Callers
// typically back this with a small static map (channel name -> key), since
// channel keys are configured out of band and do not rotate at runtime.
type KeySource interface {
	KeyFor(channelID string) []byte
}

// StaticKeySource is a KeySource that always returns the same key,
// appropriate for the common single-channel-key deployment.
type StaticKeySource struct {
	Key []byte
}

func (s StaticKeySource) KeyFor(string) []byte { return s.Key }

// Decoder decrypts and decodes raw MQTT envelope payloads into Packets.
type Decoder struct {
	keys KeySource
}

func NewDecoder(keys KeySource) *Decoder {
	return &Decoder{keys: keys}
}

// Decode parses a raw ServiceEnvelope payload, decrypts its MeshPacket if
// necessary, and dispatches on the inner Data.Portnum. Only POSITION_APP,
// TELEMETRY_APP (environment or air-quality subvariant), and NODEINFO_APP produce a
// Packet; everything else returns ErrUnsupportedPacket.
func (d *Decoder) Decode(raw []byte, region model.RegionTag) (*Packet, error) {
	var env meshtastic.ServiceEnvelope
	if err := proto.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrDecodeFailed, err)
	}
	packet := env.GetPacket()
	if packet == nil {
		return nil, fmt.Errorf("%w: no packet in envelope", ErrDecodeFailed)
	}

	data, err := d.decryptOrDecoded(packet, env.GetChannelId())
	if err != nil {
		return nil, err
	}

	p, err := dispatch(data, model.NodeID(packet.GetFrom()), region)
	if err != nil {
		return nil, err
	}
	p.PacketID = packet.GetId()
	return p, nil
}

func (d *Decoder) decryptOrDecoded(packet *meshtastic.MeshPacket, channelID string) (*meshtastic.Data, error) {
	switch v := packet.GetPayloadVariant().(type) {
	case *meshtastic.MeshPacket_Decoded:
		return v.Decoded, nil
	case *meshtastic.MeshPacket_Encrypted:
		key := d.keys.KeyFor(channelID)
		if len(key) == 0 {
			key = cryptoutil.DefaultKey
		}
		plaintext, err := cryptoutil.Decrypt(v.Encrypted, key, uint64(packet.GetId()), packet.GetFrom())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		var data meshtastic.Data
		if err := proto.Unmarshal(plaintext, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return &data, nil
	default:
		return nil, fmt.Errorf("%w: empty payload variant", ErrUnsupportedPacket)
	}
}

func dispatch(data *meshtastic.Data, nodeID model.NodeID, region model.RegionTag) (*Packet, error) {
	switch data.GetPortnum() {
	case meshtastic.PortNum_POSITION_APP:
		return decodePosition(data, nodeID, region)
	case meshtastic.PortNum_TELEMETRY_APP:
		return decodeTelemetry(data, nodeID, region)
	case meshtastic.PortNum_NODEINFO_APP:
		return decodeNodeInfo(data, nodeID, region)
	default:
		return nil, fmt.Errorf("%w: portnum %s", ErrUnsupportedPacket, data.GetPortnum().String())
	}
}

func decodePosition(data *meshtastic.Data, nodeID model.NodeID, region model.RegionTag) (*Packet, error) {
	var pos meshtastic.Position
	if err := proto.Unmarshal(data.GetPayload(), &pos); err != nil {
		return nil, fmt.Errorf("%w: position: %v", ErrDecodeFailed, err)
	}

	p := &model.Position{
		NodeID:    nodeID,
		Latitude:  float64(pos.GetLatitudeI()) * 1e-7,
		Longitude: float64(pos.GetLongitudeI()) * 1e-7,
	}
	if alt := pos.GetAltitude(); alt != 0 {
		a := alt
		p.Altitude = &a
	}

	return &Packet{Kind: KindPosition, NodeID: nodeID, Region: region, Position: p}, nil
}

func decodeNodeInfo(data *meshtastic.Data, nodeID model.NodeID, region model.RegionTag) (*Packet, error) {
	var user meshtastic.User
	if err := proto.Unmarshal(data.GetPayload(), &user); err != nil {
		return nil, fmt.Errorf("%w: nodeinfo: %v", ErrDecodeFailed, err)
	}

	return &Packet{
		Kind:   KindNodeInfo,
		NodeID: nodeID,
		Region: region,
		NodeInfo: &NodeInfoUpdate{
			NodeID:        nodeID,
			LongName:      user.GetLongName(),
			HardwareModel: int32(user.GetHwModel()),
		},
	}, nil
}

// decodeTelemetry decodes a TELEMETRY_APP packet, keeping only the
// environment-metrics and air-quality-metrics subvariants (device metrics
// and power metrics are dropped, per SPEC_FULL.md §4.A). A packet may legitimately carry
// no recognized environmental reading, in which case ErrUnsupportedPacket
// is returned so the caller's counters reflect the drop.
func decodeTelemetry(data *meshtastic.Data, nodeID model.NodeID, region model.RegionTag) (*Packet, error) {
	var t meshtastic.Telemetry
	if err := proto.Unmarshal(data.GetPayload(), &t); err != nil {
		return nil, fmt.Errorf("%w: telemetry: %v", ErrDecodeFailed, err)
	}

	reading, ok := firstEnvironmentReading(&t, nodeID, region)
	if !ok {
		return nil, fmt.Errorf("%w: no environmental reading", ErrUnsupportedPacket)
	}

	return &Packet{Kind: KindTelemetry, NodeID: nodeID, Region: region, Telemetry: reading}, nil
}

// firstEnvironmentReading extracts a single TelemetryReading from whichever
// environment- or air-quality-metrics field is populated. Meshtastic's telemetry packet
// carries one reading type per message in practice (the field with the most
// interesting non-zero value), so this picks the first plausible one rather
// than fan out into one EnrichedRecord per possible field — which matches
// the wire behavior of real devices.
func firstEnvironmentReading(t *meshtastic.Telemetry, nodeID model.NodeID, region model.RegionTag) (*model.TelemetryReading, bool) {
	sensorTime := sensorTimeOf(t)

	if env := t.GetEnvironmentMetrics(); env != nil {
		switch {
		case env.GetTemperature() != 0:
			return reading(nodeID, region, model.ReadingTemperature, float64(env.GetTemperature()), "celsius", sensorTime), true
		case env.GetRelativeHumidity() != 0:
			return reading(nodeID, region, model.ReadingHumidity, float64(env.GetRelativeHumidity()), "percent", sensorTime), true
		case env.GetBarometricPressure() != 0:
			return reading(nodeID, region, model.ReadingPressure, float64(env.GetBarometricPressure()), "hpa", sensorTime), true
		case env.GetIaq() != 0:
			return reading(nodeID, region, model.ReadingIAQ, float64(env.GetIaq()), "index", sensorTime), true
		case env.GetGasResistance() != 0:
			// No direct VOC field is published on EnvironmentMetrics; gas
			// resistance from the BME680 class of sensor is the closest
			// available proxy, and is reported under the "voc" reading type.
			return reading(nodeID, region, model.ReadingVOC, float64(env.GetGasResistance()), "kohm", sensorTime), true
		case env.GetLux() != 0:
			return reading(nodeID, region, model.ReadingLux, float64(env.GetLux()), "lux", sensorTime), true
		case env.GetWindSpeed() != 0:
			return reading(nodeID, region, model.ReadingWindSpeed, float64(env.GetWindSpeed()), "m/s", sensorTime), true
		case env.GetWindDirection() != 0:
			return reading(nodeID, region, model.ReadingWindDir, float64(env.GetWindDirection()), "degrees", sensorTime), true
		case env.GetRainfall1H() != 0:
			return reading(nodeID, region, model.ReadingRainfall, float64(env.GetRainfall1H()), "mm", sensorTime), true
		}
	}

	if aq := t.GetAirQualityMetrics(); aq != nil {
		switch {
		case aq.GetPm25Standard() != 0:
			return reading(nodeID, region, model.ReadingPM25, float64(aq.GetPm25Standard()), "ug/m3", sensorTime), true
		case aq.GetPm10Standard() != 0:
			return reading(nodeID, region, model.ReadingPM10, float64(aq.GetPm10Standard()), "ug/m3", sensorTime), true
		case aq.GetCo2() != 0:
			return reading(nodeID, region, model.ReadingCO2, float64(aq.GetCo2()), "ppm", sensorTime), true
		}
	}

	return nil, false
}

func reading(nodeID model.NodeID, region model.RegionTag, kind model.ReadingType, value float64, unit string, sensorTime uint32) *model.TelemetryReading {
	return &model.TelemetryReading{
		NodeID:     nodeID,
		Type:       kind,
		Value:      value,
		Unit:       unit,
		SensorTime: unixSeconds(sensorTime),
		Region:     region,
	}
}
