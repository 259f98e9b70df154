// Package supervisor wires the pipeline's stages together and owns its
// lifecycle (SPEC_FULL.md §4.J): construction in dependency order, signal
// handling, and an orderly shutdown that stops intake before it tears down
// the state the rest of the pipeline depends on.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rabarar/wesense-ingester/internal/config"
	"github.com/rabarar/wesense-ingester/internal/correlator"
	"github.com/rabarar/wesense-ingester/internal/decode"
	"github.com/rabarar/wesense-ingester/internal/dedup"
	"github.com/rabarar/wesense-ingester/internal/geocode"
	"github.com/rabarar/wesense-ingester/internal/guard"
	"github.com/rabarar/wesense-ingester/internal/logging"
	"github.com/rabarar/wesense-ingester/internal/metrics"
	"github.com/rabarar/wesense-ingester/internal/model"
	"github.com/rabarar/wesense-ingester/internal/pending"
	"github.com/rabarar/wesense-ingester/internal/poscache"
	"github.com/rabarar/wesense-ingester/internal/sink"
	"github.com/rabarar/wesense-ingester/internal/subscriber"
)

// ShutdownDeadline bounds how long the shutdown sequence is allowed to
// take before the process exits regardless.
const ShutdownDeadline = 30 * time.Second

// rawMessage is one undecoded MQTT payload queued for a decode worker.
type rawMessage struct {
	region  model.RegionTag
	payload []byte
}

// Supervisor owns every long-lived component of the ingester and drives
// its startup and shutdown sequence.
type Supervisor struct {
	cfg *config.Config

	metrics *metrics.Metrics
	reg     *prometheus.Registry

	dedup      *dedup.Filter
	positions  *poscache.Cache
	pendingBuf *pending.Buffer
	geo        *geocode.Cache
	decoder    *decode.Decoder
	corr       *correlator.Correlator
	sinkStage  *sink.Sink
	fleet      *subscriber.Fleet
	metricsSrv *metrics.Server

	// decodeCh carries raw payloads from subscriber callbacks to the decode
	// worker pool; corrCh carries decoded packets from the worker pool to
	// the single correlator consumer (SPEC_FULL.md §5: subscriber→decode,
	// decode→correlator are both bounded channels, and the correlator is
	// strictly single-consumer).
	decodeCh      chan rawMessage
	corrCh        chan *decode.Packet
	decodeWorkers int

	outputClient mqtt.Client

	futureTSLog *log.Logger
}

// New constructs every pipeline component in dependency order: state
// caches first (so they can be loaded from snapshot), then the stages that
// depend on them, then the subscriber fleet that feeds them. Nothing
// begins running until Run is called.
func New(cfg *config.Config) (*Supervisor, error) {
	if err := logging.Setup(logging.Config{Level: cfg.LogLevel, Timezone: cfg.Timezone}); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: creating state dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s := &Supervisor{cfg: cfg, metrics: m, reg: reg}
	s.decodeWorkers = cfg.DecodeWorkers
	s.decodeCh = make(chan rawMessage, cfg.DecodeQueueSize)
	s.corrCh = make(chan *decode.Packet, cfg.CorrelatorQueueSize)
	s.futureTSLog = logging.NewFutureTimestampLogger(cfg.FutureTimestampLogPath, logging.RotationConfig{
		MaxSizeMB:  cfg.LogRotateMaxSizeMB,
		MaxBackups: cfg.LogRotateMaxBackups,
		MaxAgeDays: cfg.LogRotateMaxAgeDays,
	})

	s.dedup = dedup.New(dedup.DefaultTTL, dedup.DefaultCapacity,
		dedup.WithEvictionCallback(func() { m.DedupEvictionsTotal.Inc() }))

	s.positions = poscache.New(filepath.Join(cfg.StateDir, "positions.json"))
	if err := s.positions.Load(); err != nil {
		return nil, fmt.Errorf("supervisor: loading position cache: %w", err)
	}

	s.pendingBuf = pending.New(filepath.Join(cfg.StateDir, "pending.json"),
		pending.WithNodeEvictionCallback(func(model.NodeID) { m.PendingEvictionsTotal.Inc() }))
	if err := s.pendingBuf.Load(); err != nil {
		return nil, fmt.Errorf("supervisor: loading pending buffer: %w", err)
	}

	gazetteer, err := geocode.LoadGazetteer()
	if err != nil {
		return nil, fmt.Errorf("supervisor: loading gazetteer: %w", err)
	}

	geoOpts := []geocode.Option{
		geocode.WithJobDroppedCallback(func() { m.GeocodeJobsDroppedTotal.Inc() }),
		geocode.WithUnknownNameCallback(func(string) { m.GeocodeUnknownNamesTotal.Inc() }),
		geocode.WithResolveErrorCallback(func(error) { m.GeocodeResolveErrorsTotal.Inc() }),
	}
	if cfg.GeocodeOnlineBaseURL != "" {
		geoOpts = append(geoOpts, geocode.WithOnlineResolver(
			geocode.NewHTTPOnlineResolver(cfg.GeocodeOnlineBaseURL, cfg.GeocodeOnlineUserAgent, cfg.GeocodeOnlineRatePerSec)))
	}
	s.geo = geocode.New(filepath.Join(cfg.StateDir, "geocode.json"), gazetteer, geoOpts...)
	if err := s.geo.Load(); err != nil {
		return nil, fmt.Errorf("supervisor: loading geocode cache: %w", err)
	}

	s.decoder = decode.NewDecoder(decode.StaticKeySource{Key: cfg.ChannelKey})

	writer, err := sink.NewClickhouseWriter(
		sink.WithClickhouseAddr(cfg.ClickhouseAddr),
		sink.WithClickhouseDB(cfg.ClickhouseDB),
		sink.WithClickhouseTable(cfg.ClickhouseTable),
		sink.WithClickhouseUser(cfg.ClickhouseUser),
		sink.WithClickhousePassword(cfg.ClickhousePassword),
		sink.WithClickhouseTLS(cfg.ClickhouseTLS),
	)
	if err != nil {
		return nil, fmt.Errorf("supervisor: connecting to columnar store: %w", err)
	}

	var republisher sink.Republisher
	if cfg.RepublishEnabled && cfg.OutputBroker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.OutputBroker).
			SetClientID(cfg.IngestionNodeID + "-republish").
			SetCleanSession(true).
			SetAutoReconnect(true)
		if cfg.OutputUsername != "" {
			opts.SetUsername(cfg.OutputUsername)
		}
		if cfg.OutputPassword != "" {
			opts.SetPassword(cfg.OutputPassword)
		}
		s.outputClient = mqtt.NewClient(opts)
		token := s.outputClient.Connect()
		token.Wait()
		if token.Error() != nil {
			return nil, fmt.Errorf("supervisor: connecting to output broker: %w", token.Error())
		}
		republisher = sink.NewMQTTRepublisher(s.outputClient, func(error) { m.SinkRepublishErrorsTotal.Inc() })
	}

	s.sinkStage = sink.New(writer,
		sink.WithBatchSize(cfg.BatchSize),
		sink.WithFlushInterval(cfg.FlushInterval),
		sink.WithRetryPolicy(cfg.MaxRetries, cfg.RetryCap),
		sink.WithRepublisher(republisher),
		sink.WithFlushSuccessCallback(func(n int) { m.SinkFlushSuccessTotal.Inc() }),
		sink.WithFlushFailureCallback(func(int, error) { m.SinkFlushFailuresTotal.Inc() }),
		sink.WithBatchDroppedCallback(func(n int) { m.SinkBatchesDroppedTotal.Inc() }),
		sink.WithRecordDroppedCallback(func() { m.SinkRecordsDroppedTotal.Inc() }),
	)

	s.corr = correlator.New(s.positions, s.pendingBuf, s.geo, s.sinkStage, cfg.IngestionNodeID)

	var subs []*subscriber.Subscriber
	for tag, r := range cfg.Regions {
		rc := subscriber.RegionConfig{
			RegionTag: tag,
			Broker:    r.Broker,
			Username:  r.Username,
			Password:  r.Password,
			Topic:     r.Topic,
			Enabled:   r.Enabled,
		}
		sub := subscriber.New(rc, s.enqueue,
			subscriber.WithClientIDPrefix(cfg.IngestionNodeID),
			subscriber.WithConnectErrorCallback(func(region model.RegionTag, err error) {
				m.SubscriberConnectErrorsTotal.WithLabelValues(string(region)).Inc()
			}),
			subscriber.WithSubscribedCallback(func(region model.RegionTag) {
				m.SubscriberReconnectsTotal.WithLabelValues(string(region)).Inc()
			}),
		)
		subs = append(subs, sub)
	}
	s.fleet = subscriber.NewFleet(subs...)

	s.metricsSrv = metrics.NewServer(reg, func() bool { return true })

	return s, nil
}

// enqueue is the Handler passed to every regional subscriber: it counts the
// message and queues its raw payload for a decode worker. It runs on paho's
// callback goroutine and must not itself decode anything — it blocks on
// decodeCh when the queue is full, which is how backpressure reaches the
// subscriber's own read loop if decoding or correlation falls behind.
func (s *Supervisor) enqueue(region model.RegionTag, payload []byte) {
	s.metrics.SubscriberMessagesTotal.WithLabelValues(string(region)).Inc()
	s.decodeCh <- rawMessage{region: region, payload: payload}
}

// runDecodeWorker is one member of the decode worker pool (SPEC_FULL.md
// §5): it decodes, deduplicates, and guards each raw payload off the
// paho callback goroutine, then hands surviving packets to the single
// correlator consumer over corrCh. It ranges until decodeCh is closed,
// draining whatever is already queued rather than abandoning it.
func (s *Supervisor) runDecodeWorker() {
	for msg := range s.decodeCh {
		if p := s.decodeAndDispatch(msg.region, msg.payload); p != nil {
			s.corrCh <- p
		}
	}
}

// decodeAndDispatch decrypts, decodes, deduplicates, and guards one raw
// payload, returning the surviving Packet or nil if it was dropped at any
// stage. Pure apart from metrics/log side effects, so it can be driven
// directly in tests without a running worker pool.
func (s *Supervisor) decodeAndDispatch(region model.RegionTag, payload []byte) *decode.Packet {
	packet, err := s.decoder.Decode(payload, region)
	if err != nil {
		switch {
		case errors.Is(err, decode.ErrDecryptFailed):
			s.metrics.DecryptFailuresTotal.Inc()
		case errors.Is(err, decode.ErrUnsupportedPacket):
			s.metrics.UnsupportedPacketsTotal.Inc()
		default:
			s.metrics.DecodeFailuresTotal.Inc()
		}
		return nil
	}
	s.metrics.PacketsDecoded.Inc()

	if s.dedup.Seen(uint32(packet.NodeID), packet.PacketID) {
		s.metrics.DuplicatePacketsTotal.Inc()
		return nil
	}

	if packet.Kind == decode.KindTelemetry {
		g := guard.Check(packet.Telemetry.SensorTime, time.Now())
		if !g.Accepted {
			s.metrics.FutureTimestampRejectionsTotal.Inc()
			s.futureTSLog.Warn("future timestamp rejected",
				"node_id", packet.NodeID.DeviceID(),
				"region", region,
				"delta_seconds", g.DeltaSeconds)
			return nil
		}
	}

	return packet
}

// runCorrelatorConsumer is the pipeline's single correlator consumer
// (SPEC_FULL.md §5/§9): every decoded packet, from every region and every
// decode worker, is handed to the correlator from this one goroutine, so
// HandlePosition/HandleTelemetry/HandleNodeInfo never race with each other
// over the Position Cache or Pending Buffer. It ranges until corrCh is
// closed.
func (s *Supervisor) runCorrelatorConsumer() {
	for p := range s.corrCh {
		s.corr.HandlePacket(p)
	}
}

// Run starts every background loop and blocks until ctx is cancelled, then
// drives the shutdown sequence within ShutdownDeadline.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := s.fleet.Run(gctx)
		close(s.decodeCh)
		return err
	})
	g.Go(func() error {
		decodeGroup := new(errgroup.Group)
		for i := 0; i < s.decodeWorkers; i++ {
			decodeGroup.Go(func() error { s.runDecodeWorker(); return nil })
		}
		err := decodeGroup.Wait()
		close(s.corrCh)
		return err
	})
	g.Go(func() error { s.runCorrelatorConsumer(); return nil })
	g.Go(func() error { s.sinkStage.Run(gctx); return nil })
	g.Go(func() error { s.geo.Run(gctx); return nil })
	g.Go(func() error { return s.runPeriodicSnapshots(gctx) })
	g.Go(func() error {
		err := s.metricsSrv.Run(gctx, s.cfg.MetricsAddr, 5*time.Second)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	<-ctx.Done()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownDeadline)
	defer shutdownCancel()

	// Let intake stop and in-flight work drain before flushing and
	// snapshotting; past ShutdownDeadline, state is persisted regardless.
	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()
	var err error
	select {
	case err = <-waitErr:
	case <-shutdownCtx.Done():
	}
	s.shutdown(shutdownCtx)

	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// runPeriodicSnapshots sweeps the position cache and pending buffer, and
// snapshots each of them when its ShouldSnapshot threshold has been
// crossed, until ctx is cancelled. The thresholds are checked once per
// poscache.SweepInterval, so an update-count threshold crossed between
// ticks is acted on at the next tick. The geocode cache is written only by
// SnapshotNow and at shutdown.
func (s *Supervisor) runPeriodicSnapshots(ctx context.Context) error {
	ticker := time.NewTicker(poscache.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.positions.Sweep()
			s.pendingBuf.Sweep()
			s.metrics.PositionCacheSize.Set(float64(s.positions.Len()))
			s.metrics.PendingBufferNodes.Set(float64(s.pendingBuf.Len()))
			s.metrics.GeocodeCacheSize.Set(float64(s.geo.Len()))
			s.metrics.DedupCacheSize.Set(float64(s.dedup.Len()))
			s.metrics.SinkBufferDepth.Set(float64(s.sinkStage.Len()))

			if s.positions.ShouldSnapshot() {
				_ = s.positions.Snapshot()
			}
			if s.pendingBuf.ShouldSnapshot() {
				_ = s.pendingBuf.Snapshot()
			}
		}
	}
}

// SnapshotNow writes the position cache, pending buffer, and geocode cache
// to disk immediately, without stopping anything. It backs the SIGHUP
// handler: an operator can force a durability checkpoint without a restart.
func (s *Supervisor) SnapshotNow() {
	if err := s.positions.Snapshot(); err != nil {
		s.metrics.SnapshotErrorsTotal.Inc()
	}
	if err := s.pendingBuf.Snapshot(); err != nil {
		s.metrics.SnapshotErrorsTotal.Inc()
	}
	if err := s.geo.Snapshot(); err != nil {
		s.metrics.SnapshotErrorsTotal.Inc()
	}
}

// shutdown runs once Run has stopped intake and let in-flight work drain
// (or ShutdownDeadline has passed): it flushes the sink and then snapshots
// every piece of durable state, so a restart never loses more than the
// time between snapshots.
func (s *Supervisor) shutdown(ctx context.Context) {
	s.dedup.Stop()

	if s.outputClient != nil {
		s.outputClient.Disconnect(250)
	}

	s.sinkStage.Flush(ctx)

	_ = s.positions.Snapshot()
	_ = s.pendingBuf.Snapshot()
	_ = s.geo.Snapshot()
}
