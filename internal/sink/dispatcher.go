package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

// Handler consumes events delivered by a Dispatcher.
type Handler interface {
	Name() string
	Handle(ctx context.Context, r feed.Response) error
}

type handlerFunc struct {
	name string
	fn   func(ctx context.Context, r feed.Response) error
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) Handle(ctx context.Context, r feed.Response) error { return h.fn(ctx, r) }

// NewHandler wraps fn as a named Handler.
func NewHandler(name string, fn func(ctx context.Context, r feed.Response) error) Handler {
	return handlerFunc{name: name, fn: fn}
}

// Resetter is implemented by handlers that keep per-connection state.
type Resetter interface {
	Reset()
}

// Dispatcher hands every event to all registered handlers in registration
// order. A failing handler is logged and does not affect the others.
type Dispatcher struct {
	handlers map[string]Handler
	order    []string
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// RegisterHandler adds a new handler to the dispatcher
func (d *Dispatcher) RegisterHandler(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[h.Name()]; exists {
		return ErrHandlerAlreadyExists
	}

	d.handlers[h.Name()] = h
	d.order = append(d.order, h.Name())
	return nil
}

// UnregisterHandler removes a handler from the dispatcher
func (d *Dispatcher) UnregisterHandler(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[name]; !exists {
		return ErrHandlerNotFound
	}
	delete(d.handlers, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListHandlers returns the registered handler names in delivery order
func (d *Dispatcher) ListHandlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Deliver implements session.Sink
func (d *Dispatcher) Deliver(ctx context.Context, r feed.Response) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, name := range d.order {
		if err := d.handlers[name].Handle(ctx, r); err != nil {
			// Log error but continue with the remaining handlers
			d.logger.Warn("handler failed", "handler", name, "event", r.EventType, "error", err)
		}
	}
	return nil
}

// Reset clears the state of every handler that implements Resetter. It is
// called when a new session starts so state does not span a gap in the feed.
func (d *Dispatcher) Reset() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, name := range d.order {
		if r, ok := d.handlers[name].(Resetter); ok {
			r.Reset()
		}
	}
}
