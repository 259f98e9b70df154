package subscriber

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fleet runs a set of per-region subscribers in parallel, each with
// independent connection lifecycle.
type Fleet struct {
	subscribers []*Subscriber
}

func NewFleet(subscribers ...*Subscriber) *Fleet {
	return &Fleet{subscribers: subscribers}
}

// Run starts every subscriber and blocks until every one of them has
// returned: a disabled region's subscriber returns at once, an enabled one
// when ctx is cancelled. Subscriber.Run always returns nil, so a subscriber
// never ends the others early.
func (f *Fleet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range f.subscribers {
		s := s
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}

// Subscribers exposes the underlying subscribers for metrics collection.
func (f *Fleet) Subscribers() []*Subscriber { return f.subscribers }
