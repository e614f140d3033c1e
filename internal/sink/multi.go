package sink

import (
	"context"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/session"
)

type multi []session.Sink

// Multi delivers every event to each sink in turn and stops at the first
// error.
func Multi(sinks ...session.Sink) session.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) Deliver(ctx context.Context, r feed.Response) error {
	for _, s := range m {
		if err := s.Deliver(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
