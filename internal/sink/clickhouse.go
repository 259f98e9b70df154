package sink

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/rabarar/wesense-ingester/internal/model"
)

// ColumnarWriter writes a batch of enriched records to the wide-table
// columnar store (SPEC_FULL.md §4.I). It is a narrow seam so tests can
// substitute a fake writer instead of a live ClickHouse connection.
type ColumnarWriter interface {
	WriteBatch(ctx context.Context, records []model.EnrichedRecord) error
}

// ClickhouseOption configures a ClickhouseWriter.
type ClickhouseOption func(*ClickhouseWriter)

// ClickhouseWriter is the production ColumnarWriter, backed by a batched
// ClickHouse insert.
type ClickhouseWriter struct {
	addr   string
	db     string
	table  string
	user   string
	pass   string
	useTLS bool
	conn   clickhouse.Conn
}

func WithClickhouseDB(db string) ClickhouseOption     { return func(w *ClickhouseWriter) { w.db = db } }
func WithClickhouseTable(table string) ClickhouseOption {
	return func(w *ClickhouseWriter) { w.table = table }
}
func WithClickhouseUser(user string) ClickhouseOption { return func(w *ClickhouseWriter) { w.user = user } }
func WithClickhousePassword(pass string) ClickhouseOption {
	return func(w *ClickhouseWriter) { w.pass = pass }
}
func WithClickhouseAddr(addr string) ClickhouseOption { return func(w *ClickhouseWriter) { w.addr = addr } }
func WithClickhouseTLS(useTLS bool) ClickhouseOption  { return func(w *ClickhouseWriter) { w.useTLS = useTLS } }

// NewClickhouseWriter opens a ClickHouse connection with the given options.
func NewClickhouseWriter(opts ...ClickhouseOption) (*ClickhouseWriter, error) {
	w := &ClickhouseWriter{
		addr:  "localhost:9440",
		db:    "default",
		table: "environmental_readings",
		user:  "default",
	}
	for _, opt := range opts {
		opt(w)
	}

	chOpts := &clickhouse.Options{
		Addr: []string{w.addr},
		Auth: clickhouse.Auth{
			Database: w.db,
			Username: w.user,
			Password: w.pass,
		},
	}
	if w.useTLS {
		chOpts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("sink: opening clickhouse connection: %w", err)
	}
	w.conn = conn
	return w, nil
}

// WriteBatch inserts every record in one ClickHouse batch, matching the
// wide-table column list from SPEC_FULL.md §6 plus ingestion_node_id. The
// store is expected to tolerate duplicates, deduped downstream by
// (device_id, reading_type, sensor_time); this writer makes no
// transactional guarantee beyond "the batch was sent".
func (w *ClickhouseWriter) WriteBatch(ctx context.Context, records []model.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		device_id,
		node_id,
		node_name,
		hardware_model,
		reading_type,
		value,
		unit,
		latitude,
		longitude,
		altitude,
		country_code,
		subdivision_code,
		data_source,
		ingestion_node_id,
		sensor_time,
		received_at,
		position_received_at,
		position_age_seconds,
		region
	)`, w.table))
	if err != nil {
		return fmt.Errorf("sink: preparing clickhouse batch: %w", err)
	}

	for _, r := range records {
		var altitude int32
		if r.Altitude != nil {
			altitude = *r.Altitude
		}
		if err := batch.Append(
			r.DeviceID,
			uint32(r.NodeID),
			r.NodeName,
			r.HardwareModel,
			string(r.ReadingType),
			r.Value,
			r.Unit,
			r.Latitude,
			r.Longitude,
			altitude,
			r.CountryCode,
			r.SubdivisionCode,
			r.DataSource,
			r.IngestionNodeID,
			r.SensorTime,
			r.ReceivedAt,
			r.PositionReceivedAt,
			r.PositionAgeSeconds,
			string(r.Region),
		); err != nil {
			return fmt.Errorf("sink: appending to clickhouse batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: sending clickhouse batch: %w", err)
	}
	return nil
}

// Close releases the underlying ClickHouse connection.
func (w *ClickhouseWriter) Close() error {
	return w.conn.Close()
}
