package session

import (
	"context"
	"errors"
	"io"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

// stream runs the producer and consumer until one of them ends. A producer
// that stops (end of stream or transport failure) closes the queue and the
// consumer drains what is already queued. A consumer that stops first
// cancels the producer.
func (s *Session) stream(ctx context.Context) error {
	q := newHandoff(s.cfg.QueueSize)

	produceCtx, cancelProduce := context.WithCancel(ctx)
	defer cancelProduce()

	produced := make(chan error, 1)
	consumed := make(chan error, 1)
	go func() { produced <- s.produce(produceCtx, q) }()
	go func() { consumed <- s.consume(ctx, q) }()

	select {
	case err := <-consumed:
		cancelProduce()
		<-produced
		return err
	case err := <-produced:
		cerr := <-consumed
		if err != nil {
			return err
		}
		return cerr
	}
}

// produce reads frames off the transport and enqueues them in arrival order.
func (s *Session) produce(ctx context.Context, q handoff) error {
	defer q.Close()

	for {
		frame, err := s.port.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("stream ended by server")
				return nil
			case ctx.Err() != nil:
				return &Error{Kind: KindCanceled, Phase: PhaseStreaming, Err: ctx.Err()}
			default:
				s.logger.Error("error reading message", "error", err)
				return &Error{Kind: KindTransport, Phase: PhaseStreaming, Err: err}
			}
		}
		s.cfg.Metrics.FrameReceived()

		if err := q.Put(ctx, frame); err != nil {
			return &Error{Kind: KindCanceled, Phase: PhaseStreaming, Err: err}
		}
		s.cfg.Metrics.SetQueueDepth(q.Len())
	}
}

// consume decodes queued frames and delivers every response to the sink.
// Frames that fail to decode are reported and skipped.
func (s *Session) consume(ctx context.Context, q handoff) error {
	for {
		frame, ok, err := q.Get(ctx)
		if err != nil {
			return &Error{Kind: KindCanceled, Phase: PhaseStreaming, Err: err}
		}
		if !ok {
			return nil
		}
		s.cfg.Metrics.SetQueueDepth(q.Len())

		batch, err := feed.DecodeFrame(frame)
		if err != nil {
			s.cfg.Metrics.DecodeError("stream")
			s.logger.Warn("skipping frame", "error", err, "bytes", len(frame))
			continue
		}
		for _, r := range batch {
			if err := s.sink.Deliver(ctx, r); err != nil {
				return &Error{Kind: KindSink, Phase: PhaseStreaming, Err: err}
			}
			s.cfg.Metrics.ResponseDelivered()
		}
	}
}
