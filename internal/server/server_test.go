package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/boxrelay/internal/config"
	"github.com/mr-karan/boxrelay/pkg/logger"
	"github.com/mr-karan/boxrelay/pkg/models"
)

type fakeRelay struct {
	mu     sync.Mutex
	alerts []models.AlertRecord
}

func (f *fakeRelay) Deliver(_ context.Context, a models.AlertRecord) []models.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	out := make([]models.DeliveryOutcome, 0, len(a.RecipientIDs))
	for _, id := range a.RecipientIDs {
		// Odd ids fail so acceptance is shown to be independent of delivery.
		out = append(out, models.DeliveryOutcome{RecipientID: id, Success: id%2 == 0})
	}
	return out
}

const validAlert = `{
	"id": 42,
	"aibox_alert_id": "AB-1",
	"alert_time": "2025-03-01 12:30:45",
	"device": {"id": 1, "aibox_id": "box", "name": "Gate", "desc": null},
	"source": {"id": 2, "source_id": "cam", "ipv4": "10.0.0.1", "desc": null},
	"alg": {"id": 3, "key": "helmet", "name": "Helmet", "type": null},
	"hazard_level": null,
	"image": null,
	"reserved_data": null,
	"company": {"id": 9, "name": "Acme", "description": null},
	"users_telegram_id": [10, 11],
	"for_security": true
}`

func newTestServer() (*Server, *fakeRelay) {
	r := &fakeRelay{}
	s := New(Options{
		Config:  config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
		Relay:   r,
		Logger:  logger.Discard(),
		Version: "test",
	})
	return s, r
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*http.Response, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env Response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestReceiveAlert_Accepted(t *testing.T) {
	s, r := newTestServer()
	resp, env := doRequest(t, s, http.MethodPost, "/alerts/", validAlert)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, CodeOK, env.ErrorCode)
	assert.Equal(t, "Alert received successfully", env.Message)
	assert.Nil(t, env.Data)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	require.Len(t, r.alerts, 1)
	assert.Equal(t, models.AlertID(42), r.alerts[0].ID)
}

func TestReceiveAlert_Invalid(t *testing.T) {
	s, r := newTestServer()
	body := strings.Replace(validAlert, `"for_security": true`, `"for_security": "yes"`, 1)

	resp, env := doRequest(t, s, http.MethodPost, "/alerts/", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, CodeInvalid, env.ErrorCode)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok, "data = %#v", env.Data)
	assert.Equal(t, "for_security", data["field"])
	assert.Empty(t, r.alerts)
}

func TestReceiveAlert_Malformed(t *testing.T) {
	s, r := newTestServer()
	resp, env := doRequest(t, s, http.MethodPost, "/alerts/", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInvalid, env.ErrorCode)
	assert.Empty(t, r.alerts)
}

func TestRequestIDPropagated(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

func TestMeta(t *testing.T) {
	s, _ := newTestServer()
	resp, env := doRequest(t, s, http.MethodGet, "/api/v1/meta", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test", data["version"])
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer()
	doRequest(t, s, http.MethodPost, "/alerts/", validAlert)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "boxrelay_alerts_received_total")
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer()
	resp, env := doRequest(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeInvalid, env.ErrorCode)
}
