package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-sonic/quote-stream/internal/feed"
	"github.com/trade-sonic/quote-stream/internal/session"
)

func decode(t *testing.T, frame string) []feed.Response {
	t.Helper()
	responses, err := feed.DecodeFrame([]byte(frame))
	require.NoError(t, err)
	return responses
}

const sampleFrame = `[` +
	`{"ev":"Q","sym":"MSFT","bx":4,"bp":114.125,"bs":100,"ax":7,"ap":114.128,"as":160,"c":0,"t":1536036818784},` +
	`{"ev":"AM","sym":"SPCE","v":200,"av":8642007,"op":25.66,"vw":25.3981,"o":25.39,"c":25.39,"h":25.4,"l":25.3,"z":50,"s":1610144868000,"e":1610144869000},` +
	`{"ev":"status","status":"success","message":"subscribed to: Q.MSFT"},` +
	`{"ev":"T","sym":"MSFT","p":114.12}` +
	`]`

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input         string
		expected      Format
		expectedError bool
	}{
		{input: "raw", expected: FormatRaw},
		{input: "pretty", expected: FormatPretty},
		{input: "", expected: FormatRaw},
		{input: "xml", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFormat(tt.input)
			if tt.expectedError {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestWriter_Raw(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatRaw)

	for _, r := range decode(t, sampleFrame) {
		require.NoError(t, w.Deliver(context.Background(), r))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], `{"ev":"Q","sym":"MSFT"`))
	assert.Equal(t, `{"ev":"T","sym":"MSFT","p":114.12}`, lines[3])
}

func TestWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatPretty)
	w.loc = time.UTC

	for _, r := range decode(t, sampleFrame) {
		require.NoError(t, w.Deliver(context.Background(), r))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[04:53:38] Q MSFT: bid $114.1250 x 100, ask $114.1280 x 160, spread $0.0030", lines[0])
	assert.Equal(t, "[22:27:48] AM SPCE: O $25.39 H $25.40 L $25.30 C $25.39, Volume: 200", lines[1])
	assert.Equal(t, "[status] success: subscribed to: Q.MSFT", lines[2])
	// unknown event types fall back to raw JSON
	assert.Equal(t, `{"ev":"T","sym":"MSFT","p":114.12}`, lines[3])
}

func TestWriter_MarshalsResponseWithoutRaw(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatRaw)

	r := feed.Response{EventType: "status", Status: feed.StatusConnected, Message: "hi"}
	require.NoError(t, w.Deliver(context.Background(), r))
	assert.JSONEq(t, `{"ev":"status","status":"connected","message":"hi"}`, strings.TrimSpace(buf.String()))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_WriteError(t *testing.T) {
	w := NewWriter(failingWriter{}, FormatRaw)
	err := w.Deliver(context.Background(), decode(t, sampleFrame)[0])
	assert.ErrorContains(t, err, "broken pipe")
}

func TestDispatcher_RegisterHandler(t *testing.T) {
	d := NewDispatcher(nil)
	noop := func(ctx context.Context, r feed.Response) error { return nil }

	require.NoError(t, d.RegisterHandler(NewHandler("printer", noop)))
	require.NoError(t, d.RegisterHandler(NewHandler("recorder", noop)))
	assert.ErrorIs(t, d.RegisterHandler(NewHandler("printer", noop)), ErrHandlerAlreadyExists)
	assert.Equal(t, []string{"printer", "recorder"}, d.ListHandlers())

	require.NoError(t, d.UnregisterHandler("printer"))
	assert.ErrorIs(t, d.UnregisterHandler("printer"), ErrHandlerNotFound)
	assert.Equal(t, []string{"recorder"}, d.ListHandlers())
}

func TestDispatcher_DeliverContinuesPastFailures(t *testing.T) {
	d := NewDispatcher(nil)
	var calls []string
	require.NoError(t, d.RegisterHandler(NewHandler("first", func(ctx context.Context, r feed.Response) error {
		calls = append(calls, "first:"+r.EventType)
		return errors.New("boom")
	})))
	require.NoError(t, d.RegisterHandler(NewHandler("second", func(ctx context.Context, r feed.Response) error {
		calls = append(calls, "second:"+r.EventType)
		return nil
	})))

	for _, r := range decode(t, sampleFrame)[:2] {
		require.NoError(t, d.Deliver(context.Background(), r))
	}
	assert.Equal(t, []string{"first:Q", "second:Q", "first:AM", "second:AM"}, calls)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []string
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, string(data))
	return nil
}

func TestNATS_Deliver(t *testing.T) {
	pub := &fakePublisher{}
	relay, err := NewNATS(pub, "quotes.raw")
	require.NoError(t, err)

	responses := decode(t, sampleFrame)
	for _, r := range responses {
		require.NoError(t, relay.Deliver(context.Background(), r))
	}

	assert.Equal(t, []string{"quotes.raw", "quotes.raw", "quotes.raw", "quotes.raw"}, pub.subjects)
	assert.Equal(t, string(responses[3].Raw), pub.payloads[3])
	assert.NoError(t, relay.Close())
}

func TestNATS_Errors(t *testing.T) {
	_, err := NewNATS(&fakePublisher{}, "")
	assert.ErrorIs(t, err, ErrNoSubject)

	_, err = DialNATS("nats://127.0.0.1:4222", "", "test")
	assert.ErrorIs(t, err, ErrNoSubject)

	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	relay, err := NewNATS(pub, "quotes")
	require.NoError(t, err)
	err = relay.Deliver(context.Background(), decode(t, sampleFrame)[0])
	assert.ErrorContains(t, err, "error publishing to quotes")
}

func TestMulti(t *testing.T) {
	var order []string
	record := func(name string, err error) session.Sink {
		return session.SinkFunc(func(ctx context.Context, r feed.Response) error {
			order = append(order, name)
			return err
		})
	}
	r := decode(t, sampleFrame)[0]

	single := record("only", nil)
	assert.NotNil(t, Multi(single))

	m := Multi(record("a", nil), record("b", errors.New("stop")), record("c", nil))
	err := m.Deliver(context.Background(), r)
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"a", "b"}, order)
}
