package session

import (
	"context"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

// Sink receives every decoded event in arrival order. A returned error ends
// the session.
type Sink interface {
	Deliver(ctx context.Context, r feed.Response) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r feed.Response) error

// Deliver calls f(ctx, r).
func (f SinkFunc) Deliver(ctx context.Context, r feed.Response) error {
	return f(ctx, r)
}
