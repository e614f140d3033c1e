package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/transport"
)

const (
	connectedFrame   = `[{"ev":"status","status":"connected","message":"Connected Successfully"}]`
	authSuccessFrame = `[{"ev":"status","status":"auth_success","message":"authenticated"}]`
	authFailedFrame  = `[{"ev":"status","status":"auth_failed","message":"authentication failed"}]`
	subscribedFrame  = `[{"ev":"status","status":"success","message":"subscribed to: Q.T"}]`
)

var testSecret = strings.Repeat("x", feed.DefaultSecretLength)

type fakeFrame struct {
	data []byte
	err  error
}

// fakePort replays scripted frames. Once the script is exhausted Receive
// returns io.EOF if the port was built with eof set, otherwise it blocks
// until ctx is done or the port is closed.
type fakePort struct {
	frames chan fakeFrame
	eof    bool

	mu     sync.Mutex
	sent   []string
	closed bool
	done   chan struct{}
}

func newFakePort(eof bool, frames ...fakeFrame) *fakePort {
	ch := make(chan fakeFrame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	return &fakePort{frames: ch, eof: eof, done: make(chan struct{})}
}

func frame(s string) fakeFrame {
	return fakeFrame{data: []byte(s)}
}

func failure(err error) fakeFrame {
	return fakeFrame{err: err}
}

var _ transport.Port = (*fakePort)(nil)

func (p *fakePort) Send(ctx context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	p.sent = append(p.sent, string(msg))
	return nil
}

func (p *fakePort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.frames:
		return f.data, f.err
	default:
	}
	if p.eof {
		return nil, io.EOF
	}
	select {
	case f := <-p.frames:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, transport.ErrClosed
	}
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *fakePort) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// recorder is a Sink that keeps every delivered response.
type recorder struct {
	mu        sync.Mutex
	responses []feed.Response
	delay     time.Duration
	failAfter int
}

var errSinkFull = errors.New("sink full")

func (r *recorder) Deliver(ctx context.Context, resp feed.Response) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && len(r.responses) >= r.failAfter {
		return errSinkFull
	}
	r.responses = append(r.responses, resp)
	return nil
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.responses))
	for _, resp := range r.responses {
		out = append(out, resp.Message)
	}
	return out
}

func testConfig() Config {
	return Config{
		Secret:        testSecret,
		Targets:       []string{"T"},
		Protocol:      feed.DefaultProtocol(),
		MaxIdleCycles: 2,
	}
}

func authRequest() string {
	return `{"action":"auth","params":"` + testSecret + `"}`
}

const subscribeRequest = `{"action":"subscribe","params":"Q.T"}`
