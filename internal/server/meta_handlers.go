package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/boxrelay/internal/metrics"
)

// --- Meta Handlers ---

// MetaResponse represents the server metadata response
type MetaResponse struct {
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth is the liveness probe.
// URL: GET /health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, "ok", nil)
}

// handleGetMeta returns the running version.
// URL: GET /api/v1/meta
func (s *Server) handleGetMeta(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, "ok", MetaResponse{
		Version: s.version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	})
}

// handleMetrics exposes counters in Prometheus text format.
// URL: GET /metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.Write(c)
	return nil
}
