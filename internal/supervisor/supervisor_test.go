package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rabarar/wesense-ingester/internal/config"
	"github.com/rabarar/wesense-ingester/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Regions:                map[model.RegionTag]config.RegionEntry{},
		BatchSize:              10,
		FlushInterval:          10,
		MaxRetries:             1,
		ClickhouseAddr:         "localhost:9440",
		ClickhouseDB:           "default",
		ClickhouseTable:        "environmental_readings",
		ClickhouseUser:         "default",
		DecodeWorkers:          2,
		DecodeQueueSize:        8,
		CorrelatorQueueSize:    8,
		StateDir:               filepath.Join(t.TempDir(), "state"),
		LogLevel:               "info",
		FutureTimestampLogPath: filepath.Join(t.TempDir(), "future.log"),
		MetricsAddr:            ":0",
		IngestionNodeID:        "test-node",
	}
}

// New constructs every component without dialing any MQTT broker, since no
// region is enabled and no output broker is configured; the ClickHouse
// driver defers its network dial until first use.
func TestNew_ConstructsWithoutRunningAnything(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.corr == nil || s.fleet == nil || s.sinkStage == nil {
		t.Fatalf("expected all core components constructed")
	}
}

func TestEnqueue_CountsSubscriberMessage(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.enqueue("us-west", []byte("not a valid service envelope"))

	if got := testutil.ToFloat64(s.metrics.SubscriberMessagesTotal.WithLabelValues("us-west")); got != 1 {
		t.Errorf("SubscriberMessagesTotal = %v, want 1", got)
	}
	select {
	case msg := <-s.decodeCh:
		if string(msg.payload) != "not a valid service envelope" {
			t.Errorf("decodeCh payload = %q, want original payload", msg.payload)
		}
	default:
		t.Fatalf("expected enqueue to deliver onto decodeCh")
	}
}

func TestDecodeAndDispatch_CountsUndecodablePayloadAsDecodeFailure(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if p := s.decodeAndDispatch("us-west", []byte("not a valid service envelope")); p != nil {
		t.Fatalf("expected nil packet for an undecodable payload")
	}

	if got := testutil.ToFloat64(s.metrics.DecodeFailuresTotal); got != 1 {
		t.Errorf("DecodeFailuresTotal = %v, want 1", got)
	}
}

func TestDedup_SuppressesRepeat(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.dedup.Seen(1, 100) {
		t.Fatalf("first observation should not be seen")
	}
	if !s.dedup.Seen(1, 100) {
		t.Fatalf("repeat observation should be seen")
	}
}
