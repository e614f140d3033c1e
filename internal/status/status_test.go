package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-sonic/quote-stream/internal/metrics"
	"github.com/trade-sonic/quote-stream/internal/runner"
	"github.com/trade-sonic/quote-stream/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedReporter runner.Snapshot

func (f fixedReporter) Snapshot() runner.Snapshot { return runner.Snapshot(f) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		snapshot     runner.Snapshot
		expectedCode int
		expected     HealthResponse
	}{
		{
			name:         "streaming",
			snapshot:     runner.Snapshot{SessionID: "abc", Phase: session.PhaseStreaming, Attempts: 2},
			expectedCode: http.StatusOK,
			expected:     HealthResponse{SessionID: "abc", Phase: "streaming", Attempts: 2},
		},
		{
			name:         "handshaking",
			snapshot:     runner.Snapshot{SessionID: "abc", Phase: session.PhaseAwaitingAuthAck, Attempts: 1},
			expectedCode: http.StatusServiceUnavailable,
			expected:     HealthResponse{SessionID: "abc", Phase: "awaiting_auth_ack", Attempts: 1},
		},
		{
			name:         "failed",
			snapshot:     runner.Snapshot{SessionID: "abc", Phase: session.PhaseFailed, Attempts: 3},
			expectedCode: http.StatusServiceUnavailable,
			expected:     HealthResponse{SessionID: "abc", Phase: "failed", Attempts: 3},
		},
		{
			name:         "no session yet",
			expectedCode: http.StatusServiceUnavailable,
			expected:     HealthResponse{Phase: "awaiting_connect_ack"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(fixedReporter(tt.snapshot), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.expectedCode, w.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.FrameReceived()
	m.ReconnectAttempt()

	router := NewRouter(fixedReporter{}, reg)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quotestream_session_frames_received_total 1")
	assert.Contains(t, w.Body.String(), "quotestream_runner_reconnect_attempts_total 1")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	router := NewRouter(fixedReporter{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RunAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	snap := runner.Snapshot{SessionID: "abc", Phase: session.PhaseStreaming}
	srv := NewServer(addr, NewRouter(fixedReporter(snap), nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	srv := NewServer(l.Addr().String(), http.NotFoundHandler(), nil)
	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to start server"))
}
