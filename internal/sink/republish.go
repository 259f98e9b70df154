package sink

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rabarar/wesense-ingester/internal/model"
)

// republishPayload is the JSON shape published to the output broker,
// per SPEC_FULL.md §4.I.
type republishPayload struct {
	Value       float64 `json:"value"`
	Timestamp   int64   `json:"timestamp"`
	DeviceID    string  `json:"device_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	Subdivision string  `json:"subdivision"`
	Unit        string  `json:"unit"`
	DataSource  string  `json:"data_source"`
	BoardModel  string  `json:"board_model"`
	ReadingType string  `json:"reading_type"`
}

// MQTTRepublisher publishes each enriched record to a topic derived from
// its resolved geography, at QoS 0. Failures are reported to the caller via
// onError and otherwise dropped; republishing never blocks the columnar
// write path.
type MQTTRepublisher struct {
	client  mqtt.Client
	onError func(err error)
}

func NewMQTTRepublisher(client mqtt.Client, onError func(err error)) *MQTTRepublisher {
	return &MQTTRepublisher{client: client, onError: onError}
}

// Republish publishes one record. It never blocks waiting for broker
// acknowledgement: at QoS 0 the publish token resolves once the write is
// handed to the connection, not once it is acknowledged.
func (r *MQTTRepublisher) Republish(record model.EnrichedRecord) {
	topic := republishTopic(record)
	payload := buildRepublishPayload(record)

	body, err := json.Marshal(payload)
	if err != nil {
		if r.onError != nil {
			r.onError(fmt.Errorf("sink: marshaling republish payload: %w", err))
		}
		return
	}

	token := r.client.Publish(topic, 0, false, body)
	go func() {
		token.Wait()
		if token.Error() != nil && r.onError != nil {
			r.onError(fmt.Errorf("sink: republishing to %s: %w", topic, token.Error()))
		}
	}()
}

func republishTopic(record model.EnrichedRecord) string {
	return fmt.Sprintf("wesense/v1/%s/%s/%s/%s", lowerOrUnknown(record.CountryCode), lowerOrUnknown(record.SubdivisionCode), record.DeviceID, record.ReadingType)
}

func buildRepublishPayload(record model.EnrichedRecord) republishPayload {
	return republishPayload{
		Value:       record.Value,
		Timestamp:   record.SensorTime.Unix(),
		DeviceID:    record.DeviceID,
		Latitude:    record.Latitude,
		Longitude:   record.Longitude,
		Country:     lowerOrUnknown(record.CountryCode),
		Subdivision: lowerOrUnknown(record.SubdivisionCode),
		Unit:        record.Unit,
		DataSource:  record.DataSource,
		BoardModel:  record.HardwareModel,
		ReadingType: string(record.ReadingType),
	}
}

// lowerOrUnknown renders a resolved geo code for the republish topic and
// payload: lowercased per spec.md §6, or the unknown placeholder if the
// code was never resolved.
func lowerOrUnknown(code string) string {
	if code == "" {
		return model.UnknownGeoCode
	}
	return strings.ToLower(code)
}
