package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presence-api/internal/service"
)

const probeTimeout = 2 * time.Second

// Probe reports whether a backing dependency answers.
type Probe func(ctx context.Context) error

// MetricsHandler serves the probes and the Prometheus scrape endpoint.
type MetricsHandler struct {
	metrics *service.MetricsService
	store   Probe
	cache   Probe
}

// NewMetricsHandler builds the handler. store gates readiness; cache is only
// reported since registry reads fall back to the store. Either may be nil.
func NewMetricsHandler(metrics *service.MetricsService, store, cache Probe) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, store: store, cache: cache}
}

func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready answers 503 while the attendance store is unreachable. A failing cache
// turns the status to degraded without failing the probe.
func (h *MetricsHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	status, code := "ready", http.StatusOK

	if err := runProbe(c.Request.Context(), h.store); err != nil {
		checks["store"] = err.Error()
		status, code = "unavailable", http.StatusServiceUnavailable
	} else if h.store != nil {
		checks["store"] = "ok"
	}

	if err := runProbe(c.Request.Context(), h.cache); err != nil {
		checks["cache"] = err.Error()
		if code == http.StatusOK {
			status = "degraded"
		}
	} else if h.cache != nil {
		checks["cache"] = "ok"
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func runProbe(ctx context.Context, p Probe) error {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return p(ctx)
}
