// Package session implements the client side of the feed protocol: the
// connect/authenticate/subscribe handshake and the ingestion pipeline that
// decouples socket reads from event delivery.
//
// A Session owns its transport for its whole life. Run performs the
// handshake, then runs one producer goroutine (socket reads) and one
// consumer goroutine (decode and deliver) connected by a FIFO hand-off
// queue. Frames are delivered in the order they arrived. The session ends
// as soon as either side ends and the transport is always closed on return.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/metrics"
	"github.com/trade-sonic/quote-stream/internal/transport"
)

// DefaultMaxIdleCycles bounds how many unrelated batches a handshake phase
// tolerates before giving up.
const DefaultMaxIdleCycles = 5

// Config configures one session.
type Config struct {
	Secret   string
	Targets  []string
	Protocol feed.Protocol

	MaxIdleCycles    int
	HandshakeTimeout time.Duration // 0 disables the wall-clock bound
	QueueSize        int           // 0 selects an unbounded queue

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Validate checks that both handshake requests can be built, so a bad
// secret or target list fails before any I/O.
func (c Config) Validate() error {
	if _, err := c.Protocol.Auth(c.Secret); err != nil {
		return err
	}
	if _, err := c.Protocol.Subscribe(c.Targets); err != nil {
		return err
	}
	if c.MaxIdleCycles < 0 {
		return fmt.Errorf("max idle cycles must not be negative, got %d", c.MaxIdleCycles)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.QueueSize)
	}
	return nil
}

// Session is one connection's worth of protocol state.
type Session struct {
	id     string
	port   transport.Port
	cfg    Config
	sink   Sink
	hs     *handshake
	logger *slog.Logger
}

// New creates a session over port delivering events to sink. Run must be
// called at most once.
func New(port transport.Port, cfg Config, sink Sink) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	id := uuid.NewString()
	logger := cfg.Logger.With("session_id", id)

	return &Session{
		id:     id,
		port:   port,
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		hs: &handshake{
			port:     port,
			protocol: cfg.Protocol,
			secret:   cfg.Secret,
			targets:  cfg.Targets,
			maxIdle:  cfg.MaxIdleCycles,
			timeout:  cfg.HandshakeTimeout,
			logger:   logger,
			metrics:  cfg.Metrics,
		},
	}
}

// Start runs a session over port until it ends. It returns nil when the
// server closed the stream after streaming started, otherwise a *Error.
func Start(ctx context.Context, port transport.Port, cfg Config, sink Sink) error {
	return New(port, cfg, sink).Run(ctx)
}

// ID returns the session's unique identifier, also logged as session_id.
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current phase. Safe for concurrent use.
func (s *Session) Phase() Phase {
	return s.hs.Phase()
}

// Run performs the handshake and then streams events to the sink.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.port.Close(); cerr != nil {
			s.logger.Debug("error closing transport", "error", cerr)
		}
	}()
	defer func() { s.finish(err) }()

	s.cfg.Metrics.SetPhase(int(s.Phase()))
	if err := s.cfg.Validate(); err != nil {
		return s.hs.fail(KindConstruction, err)
	}
	if s.sink == nil {
		return s.hs.fail(KindConstruction, errors.New("no sink configured"))
	}

	start := time.Now()
	s.logger.Info("starting handshake", "targets", s.cfg.Targets)
	if err := s.hs.run(ctx); err != nil {
		return err
	}
	s.cfg.Metrics.ObserveHandshake(time.Since(start))
	s.logger.Info("streaming", "handshake", time.Since(start))

	if err := s.stream(ctx); err != nil {
		_ = s.hs.transition(PhaseFailed)
		return err
	}
	return s.hs.close(nil)
}

// finish records the outcome once the session has ended.
func (s *Session) finish(err error) {
	if err == nil {
		s.cfg.Metrics.SessionEnded("closed")
		s.logger.Info("session ended")
		return
	}
	outcome := "unknown"
	if kind, ok := KindOf(err); ok {
		outcome = kind.String()
	}
	s.cfg.Metrics.SessionEnded(outcome)
	if errors.Is(err, context.Canceled) {
		s.logger.Info("session canceled")
		return
	}
	s.logger.Error("session failed", "error", err, "phase", s.Phase().String())
}
