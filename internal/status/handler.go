package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trade-sonic/quote-stream/internal/runner"
	"github.com/trade-sonic/quote-stream/internal/session"
)

// Reporter exposes the state of the running feed connection.
type Reporter interface {
	Snapshot() runner.Snapshot
}

// Handler serves the health endpoint
type Handler struct {
	reporter Reporter
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Attempts  int    `json:"attempts"`
}

// NewHandler creates a new handler reading state from reporter
func NewHandler(reporter Reporter) *Handler {
	return &Handler{reporter: reporter}
}

// Health reports 200 while streaming and 503 otherwise
func (h *Handler) Health(c *gin.Context) {
	snap := h.reporter.Snapshot()
	resp := HealthResponse{
		SessionID: snap.SessionID,
		Phase:     snap.Phase.String(),
		Attempts:  snap.Attempts,
	}

	code := http.StatusServiceUnavailable
	if snap.SessionID != "" && snap.Phase == session.PhaseStreaming {
		code = http.StatusOK
	}
	c.JSON(code, resp)
}

// NewRouter wires the status routes. A nil gatherer leaves /metrics out.
func NewRouter(reporter Reporter, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := NewHandler(reporter)
	r.GET("/healthz", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
