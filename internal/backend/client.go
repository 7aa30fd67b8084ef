// Package backend provides the HTTP client for the alert backend that owns
// alert state, user registration and statistics.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"

	"github.com/mr-karan/boxrelay/internal/metrics"
	"github.com/mr-karan/boxrelay/pkg/models"
)

// ErrBackendCall marks every failed round trip: transport errors, non-2xx
// responses, undecodable bodies and calls refused by the open breaker.
var ErrBackendCall = errors.New("backend call failed")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend http %d", e.StatusCode)
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client is the backend API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
}

// New creates a new backend client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("component", "backend")

	failures := opts.BreakerFailures
	c := &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		log:        log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A 4xx is the backend answering; only outages should open the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// RequestOptions describes one backend call.
type RequestOptions struct {
	Method   string
	Path     string
	Query    url.Values
	Body     any
	Endpoint string // metrics label
}

// Do performs an HTTP request against the backend through the breaker.
// Non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, opts RequestOptions) ([]byte, error) {
	reqURL, err := url.Parse(c.baseURL + opts.Path)
	if err != nil {
		return nil, errors.Mark(fmt.Errorf("invalid URL: %w", err), ErrBackendCall)
	}
	if opts.Query != nil {
		reqURL.RawQuery = opts.Query.Encode()
	}

	var payload []byte
	if opts.Body != nil {
		if payload, err = json.Marshal(opts.Body); err != nil {
			return nil, errors.Mark(fmt.Errorf("failed to marshal request body: %w", err), ErrBackendCall)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL.String(), body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "boxrelay/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
			_ = json.Unmarshal(respBody, apiErr)
			return nil, apiErr
		}
		return respBody, nil
	})

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = opts.Path
	}
	metrics.BackendCall(endpoint, err)
	if err != nil {
		c.log.Debug("backend call failed", "endpoint", endpoint, "error", err)
		return nil, errors.Mark(err, ErrBackendCall)
	}
	return out.([]byte), nil
}

// DoJSON performs a request and decodes the JSON response into result.
func (c *Client) DoJSON(ctx context.Context, opts RequestOptions, result any) error {
	body, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return errors.Mark(fmt.Errorf("failed to decode response: %w", err), ErrBackendCall)
	}
	return nil
}

// --- API Methods ---

// SendAction forwards a confirm/reject decision for an alert.
func (c *Client) SendAction(ctx context.Context, id models.AlertID, action models.Action) (*models.ActionResult, error) {
	var res models.ActionResult
	err := c.DoJSON(ctx, RequestOptions{
		Method:   http.MethodPost,
		Path:     fmt.Sprintf("/api/algorithms/v1/alerts/%d/send-action/", id),
		Body:     map[string]string{"action": string(action)},
		Endpoint: "send-action",
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterTelegram links a chat to the user owning token.
func (c *Client) RegisterTelegram(ctx context.Context, chatID int64, token string) (*models.RegistrationResult, error) {
	var res models.RegistrationResult
	err := c.DoJSON(ctx, RequestOptions{
		Method:   http.MethodPost,
		Path:     "/api/users/v1/register_telegram/",
		Body:     map[string]any{"telegram_id": chatID, "token": token},
		Endpoint: "register-telegram",
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AlertStats fetches the alert summary for the given query parameters
// (period, or start_date and end_date).
func (c *Client) AlertStats(ctx context.Context, query url.Values) (*models.AlertStats, error) {
	var res models.AlertStats
	err := c.DoJSON(ctx, RequestOptions{
		Method:   http.MethodGet,
		Path:     "/api/algorithms/alert-stats/",
		Query:    query,
		Endpoint: "alert-stats",
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ErrorMessage extracts the backend's user-facing reason from err, if any.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// IsTransport reports whether err never got an HTTP answer from the backend
// (network failure, timeout or open breaker).
func IsTransport(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr)
}
