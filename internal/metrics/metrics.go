// Package metrics holds the relay's Prometheus counters.
package metrics

import (
	"fmt"
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// AlertReceived counts alerts accepted by the intake endpoint.
func AlertReceived() {
	vm.GetOrCreateCounter(`boxrelay_alerts_received_total`).Inc()
}

// AlertRejected counts alerts refused at intake, by reason (validation, malformed).
func AlertRejected(reason string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`boxrelay_alerts_rejected_total{reason=%q}`, reason)).Inc()
}

// Delivery counts one fan-out attempt, by pass (alert, escalation) and result.
func Delivery(pass string, success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	vm.GetOrCreateCounter(fmt.Sprintf(`boxrelay_deliveries_total{pass=%q,result=%q}`, pass, result)).Inc()
}

// MediaDegraded counts alerts sent text-only because media could not be resolved.
func MediaDegraded(reason string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`boxrelay_media_degraded_total{reason=%q}`, reason)).Inc()
}

// BackendCall counts round trips to the backend, by endpoint and result.
func BackendCall(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	vm.GetOrCreateCounter(fmt.Sprintf(`boxrelay_backend_calls_total{endpoint=%q,result=%q}`, endpoint, result)).Inc()
}

// Write exposes all counters in Prometheus text format.
func Write(w io.Writer) {
	vm.WritePrometheus(w, true)
}
