// Package runner keeps a feed session alive, redialing with exponential
// backoff when a connection ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trade-sonic/quote-stream/internal/credentials"
	"github.com/trade-sonic/quote-stream/internal/metrics"
	"github.com/trade-sonic/quote-stream/internal/session"
	"github.com/trade-sonic/quote-stream/internal/transport"
)

// ErrGaveUp is returned once MaxAttempts consecutive sessions fail.
var ErrGaveUp = errors.New("giving up after repeated connection failures")

// Backoff bounds used when Config leaves them unset.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Dialer opens a new transport for one session.
type Dialer func(ctx context.Context) (transport.Port, error)

// Config configures a Runner. Session.Secret is filled from Credentials on
// every attempt.
type Config struct {
	Session     session.Config
	Credentials credentials.Source

	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // consecutive failures before giving up, 0 means unlimited

	// OnSessionStart, if set, is called with the session ID before each
	// session runs.
	OnSessionStart func(id string)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Snapshot describes the runner's current connection.
type Snapshot struct {
	SessionID string
	Phase     session.Phase
	Attempts  int
}

// Runner runs sessions one after another.
type Runner struct {
	dial   Dialer
	cfg    Config
	sink   session.Sink
	logger *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	current  *session.Session
	attempts atomic.Int64
}

// New creates a runner that dials with dial and delivers to sink.
func New(dial Dialer, cfg Config, sink session.Sink) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.InitialDelay)
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}
	if cfg.Session.Metrics == nil {
		cfg.Session.Metrics = cfg.Metrics
	}
	return &Runner{
		dial:   dial,
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger,
		sleep:  sleepContext,
	}
}

// Snapshot returns the state of the latest session. Safe for concurrent use.
func (r *Runner) Snapshot() Snapshot {
	snap := Snapshot{Attempts: int(r.attempts.Load())}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current != nil {
		snap.SessionID = r.current.ID()
		snap.Phase = r.current.Phase()
	}
	return snap
}

// Run starts sessions until ctx is done or an outcome that retrying cannot
// fix. It returns nil once ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	delay := r.cfg.InitialDelay
	failures := 0

	for {
		n := r.attempts.Add(1)
		if n > 1 {
			r.cfg.Metrics.ReconnectAttempt()
		}
		r.logger.Info("connecting", "attempt", n)

		err := r.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !retriable(err) {
			return err
		}

		if streamed(err) {
			delay = r.cfg.InitialDelay
			failures = 0
			if err == nil {
				r.logger.Info("server closed the stream, reconnecting")
			}
		} else {
			failures++
			if r.cfg.MaxAttempts > 0 && failures >= r.cfg.MaxAttempts {
				return fmt.Errorf("%w (%d attempts): %w", ErrGaveUp, failures, err)
			}
		}

		r.logger.Info("waiting before reconnecting", "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return nil
		}

		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	if r.cfg.Credentials == nil {
		return constructionError(credentials.ErrNoSecret)
	}
	secret, err := r.cfg.Credentials.Secret(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNoSecret) {
			return constructionError(err)
		}
		return fmt.Errorf("error fetching secret: %w", err)
	}

	cfg := r.cfg.Session
	cfg.Secret = secret
	if err := cfg.Validate(); err != nil {
		return constructionError(err)
	}

	port, err := r.dial(ctx)
	if err != nil {
		return err
	}

	s := session.New(port, cfg, r.sink)
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()

	if r.cfg.OnSessionStart != nil {
		r.cfg.OnSessionStart(s.ID())
	}
	return s.Run(ctx)
}

func constructionError(err error) error {
	return &session.Error{Kind: session.KindConstruction, Phase: session.PhaseAwaitingConnectAck, Err: err}
}

// retriable reports whether a new connection could end differently.
func retriable(err error) bool {
	kind, ok := session.KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case session.KindConstruction, session.KindAuthRejected, session.KindSink:
		return false
	}
	return true
}

// streamed reports whether the session got as far as Streaming.
func streamed(err error) bool {
	if err == nil {
		return true
	}
	var se *session.Error
	return errors.As(err, &se) && se.Phase == session.PhaseStreaming
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
