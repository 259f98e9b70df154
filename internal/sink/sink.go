// Package sink implements the Batched Sink (SPEC_FULL.md §4.I): a bounded
// buffer of correlated records flushed to a columnar store on a size/age
// policy, with retry-then-drop on persistent failure, plus an optional
// best-effort MQTT republish of each record as it is submitted.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rabarar/wesense-ingester/internal/model"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 10 * time.Second
	DefaultMaxRetries    = 5
	DefaultRetryCap      = 60 * time.Second
	// bufferHeadroomFactor bounds the buffer at this multiple of the batch
	// size even if flushes fall behind, so a stalled columnar store can
	// never grow memory usage without limit.
	bufferHeadroomFactor = 10
)

// Republisher best-effort republishes a record to an output broker. It
// must not block the sink's Submit path for long.
type Republisher interface {
	Republish(record model.EnrichedRecord)
}

// Sink is the batching/flush/retry stage between the correlator and the
// columnar store.
type Sink struct {
	mu     sync.Mutex
	buffer []model.EnrichedRecord

	batchSize     int
	maxBufferSize int
	flushInterval time.Duration
	maxRetries    uint64
	retryCap      time.Duration

	writer      ColumnarWriter
	republisher Republisher
	clock       func() time.Time

	flushSignal chan struct{}

	onFlushSuccess  func(n int)
	onFlushFailure  func(attempt int, err error)
	onBatchDropped  func(n int)
	onRecordDropped func()
}

// Option configures a Sink.
type Option func(*Sink)

func WithBatchSize(n int) Option         { return func(s *Sink) { s.batchSize = n } }
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) { s.flushInterval = d }
}
func WithRetryPolicy(maxRetries uint64, cap time.Duration) Option {
	return func(s *Sink) { s.maxRetries = maxRetries; s.retryCap = cap }
}
func WithRepublisher(r Republisher) Option { return func(s *Sink) { s.republisher = r } }
func WithClock(clock func() time.Time) Option {
	return func(s *Sink) { s.clock = clock }
}
func WithFlushSuccessCallback(fn func(n int)) Option {
	return func(s *Sink) { s.onFlushSuccess = fn }
}
func WithFlushFailureCallback(fn func(attempt int, err error)) Option {
	return func(s *Sink) { s.onFlushFailure = fn }
}
func WithBatchDroppedCallback(fn func(n int)) Option {
	return func(s *Sink) { s.onBatchDropped = fn }
}
func WithRecordDroppedCallback(fn func()) Option {
	return func(s *Sink) { s.onRecordDropped = fn }
}

func New(writer ColumnarWriter, opts ...Option) *Sink {
	s := &Sink{
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		maxRetries:    DefaultMaxRetries,
		retryCap:      DefaultRetryCap,
		writer:        writer,
		clock:         time.Now,
		flushSignal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBufferSize == 0 {
		s.maxBufferSize = s.batchSize * bufferHeadroomFactor
	}
	return s
}

// Submit appends a record to the buffer and republishes it, never blocking
// on the columnar write itself. If the buffer is already at its hard cap
// (the columnar store is falling behind), the record is dropped and a
// counter incremented rather than growing memory without bound.
func (s *Sink) Submit(record model.EnrichedRecord) {
	s.mu.Lock()
	if len(s.buffer) >= s.maxBufferSize {
		s.mu.Unlock()
		if s.onRecordDropped != nil {
			s.onRecordDropped()
		}
		return
	}
	s.buffer = append(s.buffer, record)
	full := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if s.republisher != nil {
		s.republisher.Republish(record)
	}

	if full {
		select {
		case s.flushSignal <- struct{}{}:
		default:
		}
	}
}

// Run drives time-based flushes and reacts to size-triggered flush
// signals until ctx is cancelled, at which point it flushes once more
// before returning.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		case <-ticker.C:
			s.Flush(ctx)
		case <-s.flushSignal:
			s.Flush(ctx)
		}
	}
}

// Flush drains the current buffer and writes it, retrying with exponential
// backoff up to the configured cap. On exhaustion the batch is dropped and
// a failure counter incremented; the pipeline is never blocked and the
// buffer never grows past its bound.
func (s *Sink) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	bo := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(1*time.Second),
			backoff.WithMaxInterval(s.retryCap),
		),
		s.maxRetries,
	)

	attempt := 0
	err := backoff.RetryNotify(
		func() error { return s.writer.WriteBatch(ctx, batch) },
		bo,
		func(err error, _ time.Duration) {
			attempt++
			if s.onFlushFailure != nil {
				s.onFlushFailure(attempt, err)
			}
		},
	)

	if err != nil {
		if s.onBatchDropped != nil {
			s.onBatchDropped(len(batch))
		}
		return
	}
	if s.onFlushSuccess != nil {
		s.onFlushSuccess(len(batch))
	}
}

// Len reports the number of records currently buffered, awaiting flush.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
