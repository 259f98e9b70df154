package decode

import (
	"testing"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"

	"github.com/rabarar/wesense-ingester/internal/cryptoutil"
	"github.com/rabarar/wesense-ingester/internal/model"
)

func envelopeWithDecoded(t *testing.T, from uint32, data *meshtastic.Data) []byte {
	t.Helper()
	env := &meshtastic.ServiceEnvelope{
		Packet: &meshtastic.MeshPacket{
			From: from,
			Id:   42,
			PayloadVariant: &meshtastic.MeshPacket_Decoded{
				Decoded: data,
			},
		},
		ChannelId: "LongFast",
	}
	raw, err := proto.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func envelopeWithEncrypted(t *testing.T, from uint32, id uint32, key []byte, data *meshtastic.Data) []byte {
	t.Helper()
	plaintext, err := proto.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	ciphertext, err := cryptoutil.Decrypt(plaintext, key, uint64(id), from)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env := &meshtastic.ServiceEnvelope{
		Packet: &meshtastic.MeshPacket{
			From: from,
			Id:   id,
			PayloadVariant: &meshtastic.MeshPacket_Encrypted{
				Encrypted: ciphertext,
			},
		},
		ChannelId: "LongFast",
	}
	raw, err := proto.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestDecode_Position(t *testing.T) {
	pos := &meshtastic.Position{
		LatitudeI:  -368485000,
		LongitudeI: 1747633000,
	}
	payload, err := proto.Marshal(pos)
	if err != nil {
		t.Fatal(err)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_POSITION_APP, Payload: payload}
	raw := envelopeWithDecoded(t, 0xa1b2c3d4, data)

	d := NewDecoder(decode_staticKeys{})
	pkt, err := d.Decode(raw, "ANZ")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Kind != KindPosition {
		t.Fatalf("Kind = %v, want KindPosition", pkt.Kind)
	}
	if pkt.Position.Latitude != -36.8485 {
		t.Fatalf("Latitude = %v, want -36.8485", pkt.Position.Latitude)
	}
	if pkt.Position.Longitude != 174.7633 {
		t.Fatalf("Longitude = %v, want 174.7633", pkt.Position.Longitude)
	}
}

func TestDecode_EncryptedPacket(t *testing.T) {
	pos := &meshtastic.Position{LatitudeI: 515074000, LongitudeI: -1278000}
	payload, err := proto.Marshal(pos)
	if err != nil {
		t.Fatal(err)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_POSITION_APP, Payload: payload}
	raw := envelopeWithEncrypted(t, 0xdeadbeef, 7, cryptoutil.DefaultKey, data)

	d := NewDecoder(decode_staticKeys{})
	pkt, err := d.Decode(raw, "EU_868")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Kind != KindPosition {
		t.Fatalf("Kind = %v, want KindPosition", pkt.Kind)
	}
	if pkt.NodeID != model.NodeID(0xdeadbeef) {
		t.Fatalf("NodeID = %x, want deadbeef", pkt.NodeID)
	}
}

func TestDecode_UnsupportedPortnum(t *testing.T) {
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_ROUTING_APP, Payload: nil}
	raw := envelopeWithDecoded(t, 1, data)

	d := NewDecoder(decode_staticKeys{})
	_, err := d.Decode(raw, "US")
	if err == nil {
		t.Fatalf("expected error for unsupported portnum")
	}
}

func TestDecode_Telemetry_Temperature(t *testing.T) {
	tel := &meshtastic.Telemetry{
		Time: 1700000000,
		Variant: &meshtastic.Telemetry_EnvironmentMetrics{
			EnvironmentMetrics: &meshtastic.EnvironmentMetrics{
				Temperature: 22.5,
			},
		},
	}
	payload, err := proto.Marshal(tel)
	if err != nil {
		t.Fatal(err)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_TELEMETRY_APP, Payload: payload}
	raw := envelopeWithDecoded(t, 0x1, data)

	d := NewDecoder(decode_staticKeys{})
	pkt, err := d.Decode(raw, "ANZ")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Kind != KindTelemetry {
		t.Fatalf("Kind = %v, want KindTelemetry", pkt.Kind)
	}
	if pkt.Telemetry.Type != model.ReadingTemperature {
		t.Fatalf("Type = %v, want temperature", pkt.Telemetry.Type)
	}
	if pkt.Telemetry.Value != 22.5 {
		t.Fatalf("Value = %v, want 22.5", pkt.Telemetry.Value)
	}
}

func TestDecode_Telemetry_DeviceMetricsDropped(t *testing.T) {
	tel := &meshtastic.Telemetry{
		Time: 1700000000,
		Variant: &meshtastic.Telemetry_DeviceMetrics{
			DeviceMetrics: &meshtastic.DeviceMetrics{
				BatteryLevel: 80,
			},
		},
	}
	payload, err := proto.Marshal(tel)
	if err != nil {
		t.Fatal(err)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_TELEMETRY_APP, Payload: payload}
	raw := envelopeWithDecoded(t, 0x1, data)

	d := NewDecoder(decode_staticKeys{})
	_, err = d.Decode(raw, "ANZ")
	if err == nil {
		t.Fatalf("expected device metrics to be dropped as unsupported")
	}
}

func TestDecode_NodeInfo(t *testing.T) {
	user := &meshtastic.User{LongName: "Test Node", HwModel: meshtastic.HardwareModel_HELTEC_V3}
	payload, err := proto.Marshal(user)
	if err != nil {
		t.Fatal(err)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_NODEINFO_APP, Payload: payload}
	raw := envelopeWithDecoded(t, 0x1, data)

	d := NewDecoder(decode_staticKeys{})
	pkt, err := d.Decode(raw, "ANZ")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pkt.Kind != KindNodeInfo {
		t.Fatalf("Kind = %v, want KindNodeInfo", pkt.Kind)
	}
	if pkt.NodeInfo.LongName != "Test Node" {
		t.Fatalf("LongName = %q", pkt.NodeInfo.LongName)
	}
}

type decode_staticKeys struct{}

func (decode_staticKeys) KeyFor(string) []byte { return cryptoutil.DefaultKey }
