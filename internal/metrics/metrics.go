// Package metrics defines the Prometheus counters and gauges for every
// drop, retry, and eviction event named in SPEC_FULL.md §4.K, plus the
// /metrics and /healthz HTTP endpoints that expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the ingester exports.
type Metrics struct {
	// Decoder
	PacketsDecoded        prometheus.Counter
	DecryptFailuresTotal  prometheus.Counter
	DecodeFailuresTotal   prometheus.Counter
	UnsupportedPacketsTotal prometheus.Counter

	// Dedup filter
	DuplicatePacketsTotal prometheus.Counter
	DedupEvictionsTotal   prometheus.Counter
	DedupCacheSize        prometheus.Gauge

	// Timestamp guard
	FutureTimestampRejectionsTotal prometheus.Counter

	// Position cache / pending buffer
	PositionCacheSize   prometheus.Gauge
	PendingBufferNodes  prometheus.Gauge
	PendingEvictionsTotal prometheus.Counter

	// Geocoder
	GeocodeCacheSize       prometheus.Gauge
	GeocodeJobsDroppedTotal prometheus.Counter
	GeocodeResolveErrorsTotal prometheus.Counter
	GeocodeUnknownNamesTotal  prometheus.Counter

	// Subscribers
	SubscriberMessagesTotal   *prometheus.CounterVec
	SubscriberReconnectsTotal *prometheus.CounterVec
	SubscriberConnectErrorsTotal *prometheus.CounterVec

	// Sink
	SinkFlushSuccessTotal  prometheus.Counter
	SinkFlushFailuresTotal prometheus.Counter
	SinkBatchesDroppedTotal prometheus.Counter
	SinkRecordsDroppedTotal prometheus.Counter
	SinkRepublishErrorsTotal prometheus.Counter
	SinkBufferDepth        prometheus.Gauge

	// Supervisor
	SnapshotErrorsTotal prometheus.Counter
}

// New registers every metric against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_packets_decoded_total",
			Help: "Total number of mesh packets successfully decoded.",
		}),
		DecryptFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_decrypt_failures_total",
			Help: "Total number of packets dropped due to decryption failure.",
		}),
		DecodeFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_decode_failures_total",
			Help: "Total number of packets dropped due to protobuf decode failure.",
		}),
		UnsupportedPacketsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_unsupported_packets_total",
			Help: "Total number of packets dropped because their portnum/variant is not handled.",
		}),
		DuplicatePacketsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_duplicate_packets_total",
			Help: "Total number of packets dropped by the deduplication filter.",
		}),
		DedupEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_dedup_evictions_total",
			Help: "Total number of dedup filter entries evicted for capacity.",
		}),
		DedupCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wesense_dedup_cache_size",
			Help: "Current number of entries held in the dedup filter.",
		}),
		FutureTimestampRejectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_future_timestamp_rejections_total",
			Help: "Total number of readings rejected by the timestamp guard for excessive future skew.",
		}),
		PositionCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wesense_position_cache_size",
			Help: "Current number of nodes held in the position cache.",
		}),
		PendingBufferNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wesense_pending_buffer_nodes",
			Help: "Current number of nodes with a pending telemetry queue.",
		}),
		PendingEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_pending_evictions_total",
			Help: "Total number of nodes evicted from the pending buffer for global capacity.",
		}),
		GeocodeCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wesense_geocode_cache_size",
			Help: "Current number of resolved localities held in the geocoder L1 cache.",
		}),
		GeocodeJobsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_geocode_jobs_dropped_total",
			Help: "Total number of async resolve jobs dropped because the queue was full.",
		}),
		GeocodeResolveErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_geocode_resolve_errors_total",
			Help: "Total number of online geocode resolve attempts that errored.",
		}),
		GeocodeUnknownNamesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_geocode_unknown_names_total",
			Help: "Total number of resolver country/admin1 names not found in the static code tables.",
		}),
		SubscriberMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wesense_subscriber_messages_total",
			Help: "Total number of MQTT messages received, by region.",
		}, []string{"region"}),
		SubscriberReconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wesense_subscriber_reconnects_total",
			Help: "Total number of successful (re)connections, by region.",
		}, []string{"region"}),
		SubscriberConnectErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wesense_subscriber_connect_errors_total",
			Help: "Total number of connection attempts that failed, by region.",
		}, []string{"region"}),
		SinkFlushSuccessTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_sink_flush_success_total",
			Help: "Total number of batches successfully written to the columnar store.",
		}),
		SinkFlushFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_sink_flush_failures_total",
			Help: "Total number of individual flush attempts that failed (including ones later retried successfully).",
		}),
		SinkBatchesDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_sink_batches_dropped_total",
			Help: "Total number of batches dropped after exhausting retries.",
		}),
		SinkRecordsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_sink_records_dropped_total",
			Help: "Total number of records dropped because the sink buffer was at its hard capacity.",
		}),
		SinkRepublishErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_sink_republish_errors_total",
			Help: "Total number of MQTT republish attempts that failed.",
		}),
		SinkBufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wesense_sink_buffer_depth",
			Help: "Current number of records buffered awaiting flush.",
		}),
		SnapshotErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wesense_snapshot_errors_total",
			Help: "Total number of state-cache snapshot writes that failed.",
		}),
	}
}
