package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/metrics"
	"github.com/trade-sonic/quote-stream/internal/transport"
)

// handshake drives Connect -> Authenticate -> Subscribe. Each request is
// only built and sent from the entry action of the phase that follows the
// matching acknowledgement.
type handshake struct {
	port     transport.Port
	protocol feed.Protocol
	secret   string
	targets  []string
	maxIdle  int
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	phase atomic.Int32
	idle  int // batches seen in the current phase without the awaited ack
}

func (h *handshake) Phase() Phase {
	return Phase(h.phase.Load())
}

func (h *handshake) transition(to Phase) error {
	from := h.Phase()
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	h.phase.Store(int32(to))
	h.idle = 0
	h.metrics.SetPhase(int(to))
	h.logger.Debug("phase changed", "from", from.String(), "to", to.String())
	return nil
}

// fail moves to Failed and returns the classified error. The error records
// the phase the failure happened in.
func (h *handshake) fail(kind ErrorKind, err error) error {
	from := h.Phase()
	if !from.Terminal() {
		_ = h.transition(PhaseFailed)
	}
	return &Error{Kind: kind, Phase: from, Err: err}
}

// close moves to Closed and, when err is non-nil, returns it classified.
func (h *handshake) close(err error) error {
	from := h.Phase()
	if !from.Terminal() {
		_ = h.transition(PhaseClosed)
	}
	if err == nil {
		return nil
	}
	return &Error{Kind: KindClosed, Phase: from, Err: err}
}

// run reads acknowledgement batches until Streaming or a terminal phase.
func (h *handshake) run(ctx context.Context) error {
	hctx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeoutCause(ctx, h.timeout, ErrHandshakeTimeout)
		defer cancel()
	}

	for h.Phase() != PhaseStreaming {
		frame, err := h.port.Receive(hctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return h.close(ErrStreamClosed)
			case ctx.Err() != nil:
				return h.fail(KindCanceled, ctx.Err())
			case hctx.Err() != nil:
				return h.fail(KindHandshakeTimeout, fmt.Errorf("%w: no acknowledgement within %s", ErrHandshakeTimeout, h.timeout))
			default:
				return h.fail(KindTransport, err)
			}
		}

		batch, err := feed.DecodeFrame(frame)
		if err != nil {
			h.metrics.DecodeError("handshake")
			return h.fail(KindDecode, err)
		}
		if err := h.step(hctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// step applies one decoded batch to the state machine.
func (h *handshake) step(ctx context.Context, batch []feed.Response) error {
	switch phase := h.Phase(); phase {
	case PhaseAwaitingConnectAck:
		if feed.HasStatus(batch, feed.StatusConnected) {
			if err := h.transition(PhaseAwaitingAuthAck); err != nil {
				return h.fail(KindConstruction, err)
			}
			return h.sendAuth(ctx)
		}
	case PhaseAwaitingAuthAck:
		if feed.HasStatus(batch, feed.StatusAuthFailed) {
			return h.fail(KindAuthRejected, fmt.Errorf("%w: %s", ErrAuthenticationRejected, statusMessage(batch, feed.StatusAuthFailed)))
		}
		if feed.HasStatus(batch, feed.StatusAuthSuccess) {
			if err := h.transition(PhaseAwaitingSubscribeAck); err != nil {
				return h.fail(KindConstruction, err)
			}
			return h.sendSubscribe(ctx)
		}
	case PhaseAwaitingSubscribeAck:
		if feed.HasStatus(batch, feed.StatusSuccess) {
			if err := h.transition(PhaseStreaming); err != nil {
				return h.fail(KindConstruction, err)
			}
			return nil
		}
	default:
		return fmt.Errorf("%w: no handshake step in %s", ErrIllegalTransition, phase)
	}

	h.idle++
	h.logger.Debug("ignoring batch", "phase", h.Phase().String(), "responses", len(batch), "idle", h.idle)
	if h.idle > h.maxIdle {
		return h.fail(KindHandshakeTimeout, fmt.Errorf("%w: %d batches without acknowledgement", ErrHandshakeTimeout, h.idle))
	}
	return nil
}

func (h *handshake) sendAuth(ctx context.Context) error {
	req, err := h.protocol.Auth(h.secret)
	if err != nil {
		return h.fail(KindConstruction, err)
	}
	h.logger.Info("authenticating")
	return h.send(ctx, req)
}

func (h *handshake) sendSubscribe(ctx context.Context) error {
	req, err := h.protocol.Subscribe(h.targets)
	if err != nil {
		return h.fail(KindConstruction, err)
	}
	h.logger.Info("subscribing", "params", req.Params)
	return h.send(ctx, req)
}

func (h *handshake) send(ctx context.Context, req feed.Request) error {
	data, err := req.Marshal()
	if err != nil {
		return h.fail(KindConstruction, err)
	}
	if err := h.port.Send(ctx, data); err != nil {
		switch {
		case errors.Is(context.Cause(ctx), ErrHandshakeTimeout):
			return h.fail(KindHandshakeTimeout, fmt.Errorf("%w: sending %s request", ErrHandshakeTimeout, req.Action))
		case ctx.Err() != nil:
			return h.fail(KindCanceled, ctx.Err())
		}
		return h.fail(KindTransport, fmt.Errorf("error sending %s request: %w", req.Action, err))
	}
	return nil
}

func statusMessage(batch []feed.Response, status feed.Status) string {
	for _, r := range batch {
		if r.Status == status {
			return r.Message
		}
	}
	return ""
}
