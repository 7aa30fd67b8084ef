package server

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/boxrelay/internal/intake"
	"github.com/mr-karan/boxrelay/internal/metrics"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// handleReceiveAlert validates a pushed alert and fans it out before replying.
// Acceptance means the alert was valid and dispatch was attempted; delivery
// failures do not change the response. The reply waits for every fan-out
// wave (see config.FanOutWave).
// URL: POST /alerts/
func (s *Server) handleReceiveAlert(c *fiber.Ctx) error {
	reqID := requestIDFrom(c)

	alert, err := intake.Parse(c.Body())
	if err != nil {
		var vErr *intake.ValidationError
		if errors.As(err, &vErr) {
			metrics.AlertRejected("validation")
			s.log.Warn("rejected invalid alert", "request_id", reqID, "field", vErr.Field, "reason", vErr.Reason)
			return SendErrorWithType(c, fiber.StatusUnprocessableEntity, vErr.Error(), CodeInvalid, vErr)
		}
		metrics.AlertRejected("malformed")
		s.log.Warn("rejected malformed alert", "request_id", reqID, "error", err)
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalid, nil)
	}

	metrics.AlertReceived()
	outcomes := s.relay.Deliver(c.UserContext(), alert)
	s.log.Info("alert received",
		"request_id", reqID,
		"alert_id", alert.ID,
		"recipients", len(outcomes),
		"delivered", models.CountSuccesses(outcomes))

	return SendSuccess(c, fiber.StatusOK, "Alert received successfully", nil)
}
