package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/rabarar/wesense-ingester/internal/model"
)

func TestSubscriber_DisabledRegionReturnsImmediately(t *testing.T) {
	s := New(RegionConfig{RegionTag: "US", Enabled: false}, func(model.RegionTag, []byte) {})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("disabled subscriber should return immediately")
	}
}

func TestSubscriber_CancelledContextStopsRetryLoop(t *testing.T) {
	s := New(RegionConfig{RegionTag: "US", Enabled: true, Broker: "tcp://127.0.0.1:1"}, func(model.RegionTag, []byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() should exit promptly after context cancellation")
	}
}

func TestFleet_RunsAllDisabledSubscribersAndReturns(t *testing.T) {
	a := New(RegionConfig{RegionTag: "US", Enabled: false}, func(model.RegionTag, []byte) {})
	b := New(RegionConfig{RegionTag: "EU", Enabled: false}, func(model.RegionTag, []byte) {})
	fleet := NewFleet(a, b)

	done := make(chan error, 1)
	go func() { done <- fleet.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("fleet of disabled subscribers should return immediately")
	}
}

func TestFleet_Subscribers(t *testing.T) {
	a := New(RegionConfig{RegionTag: "US"}, nil)
	fleet := NewFleet(a)
	if len(fleet.Subscribers()) != 1 {
		t.Fatalf("expected 1 subscriber")
	}
}
