// Package subscriber implements the Regional Subscriber Fleet (SPEC_FULL.md
// §4.H): one MQTT client per configured mesh region, each independently
// reconnecting with exponential backoff and feeding decoded work into the
// shared pipeline.
package subscriber

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/cenkalti/backoff/v4"

	"github.com/rabarar/wesense-ingester/internal/model"
)

// RegionConfig is the per-region connection configuration (SPEC_FULL.md
// §4.H / §4.J).
type RegionConfig struct {
	RegionTag model.RegionTag
	Broker    string // e.g. "tcp://mqtt.example.org:1883"
	Username  string
	Password  string
	Topic     string
	Enabled   bool
}

// Handler accepts one raw MQTT payload for a region, typically by queueing
// it onto a bounded channel feeding a decode worker pool owned by the
// caller (SPEC_FULL.md §5). It runs on paho's own callback goroutine and
// may block — that blocking is how backpressure from a full decode queue
// reaches back to the subscriber's read loop.
type Handler func(region model.RegionTag, payload []byte)

// Subscriber is one region's MQTT connection.
type Subscriber struct {
	cfg     RegionConfig
	handler Handler

	clientIDPrefix string
	client         mqtt.Client

	messageCount   atomic.Uint64
	reconnectCount atomic.Uint64

	onConnectError func(region model.RegionTag, err error)
	onSubscribed   func(region model.RegionTag)
}

// Option configures a Subscriber.
type Option func(*Subscriber)

func WithClientIDPrefix(prefix string) Option {
	return func(s *Subscriber) { s.clientIDPrefix = prefix }
}

func WithConnectErrorCallback(fn func(region model.RegionTag, err error)) Option {
	return func(s *Subscriber) { s.onConnectError = fn }
}

func WithSubscribedCallback(fn func(region model.RegionTag)) Option {
	return func(s *Subscriber) { s.onSubscribed = fn }
}

func New(cfg RegionConfig, handler Handler, opts ...Option) *Subscriber {
	s := &Subscriber{
		cfg:            cfg,
		handler:        handler,
		clientIDPrefix: "wesense-ingester",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and subscribes, reconnecting with exponential backoff (base
// 1s, cap 60s, jitter) whenever the connection drops, until ctx is
// cancelled. It always returns nil — at once for a disabled region, on
// cancellation otherwise — so one region's permanent outage never aborts
// the rest of the fleet.
func (s *Subscriber) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(1*time.Second),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithMaxElapsedTime(0), // retry indefinitely; the subscriber never gives up on its own
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		lost := make(chan error, 1)
		if err := s.connect(ctx, lost); err != nil {
			if s.onConnectError != nil {
				s.onConnectError(s.cfg.RegionTag, err)
			}
			if !s.sleep(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}

		bo.Reset()
		s.reconnectCount.Add(1)

		select {
		case <-ctx.Done():
			s.client.Disconnect(250)
			return nil
		case err := <-lost:
			if s.onConnectError != nil {
				s.onConnectError(s.cfg.RegionTag, err)
			}
			if !s.sleep(ctx, bo.NextBackOff()) {
				return nil
			}
		}
	}
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Subscriber) connect(ctx context.Context, lost chan<- error) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s", s.clientIDPrefix, s.cfg.RegionTag)).
		SetCleanSession(true).  // no client-side persistent queues, per SPEC_FULL.md §4.H
		SetAutoReconnect(false) // reconnection is driven by our own backoff loop, not paho's

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, 0, s.onMessage) // QoS 0: mesh is lossy by design
		token.Wait()
		if token.Error() != nil {
			select {
			case lost <- token.Error():
			default:
			}
			return
		}
		if s.onSubscribed != nil {
			s.onSubscribed(s.cfg.RegionTag)
		}
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	return token.Error()
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.messageCount.Add(1)
	s.handler(s.cfg.RegionTag, msg.Payload())
}

// MessageCount reports the number of messages received since the
// subscriber was created, for observability.
func (s *Subscriber) MessageCount() uint64 { return s.messageCount.Load() }

// ReconnectCount reports the number of successful (re)connections.
func (s *Subscriber) ReconnectCount() uint64 { return s.reconnectCount.Load() }
