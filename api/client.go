// Package api is the client for the hospital appointment REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RequestIDHeader carries a fresh uuid on every request.
const RequestIDHeader = "X-Request-ID"

// Client talks to the REST API. It holds no session state; callers pass the
// user id explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *gobreaker.CircuitBreaker
}

// BreakerSettings controls when the client stops calling an unreachable API.
// Failures <= 0 disables tripping.
type BreakerSettings struct {
	Failures uint32
	Cooldown time.Duration
}

// DefaultBreaker trips after five consecutive failures for thirty seconds.
var DefaultBreaker = BreakerSettings{Failures: 5, Cooldown: 30 * time.Second}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(s BreakerSettings) ClientOption {
	return func(c *Client) {
		c.breaker = newBreaker(s, c)
	}
}

// NewClient creates a client for baseURL, e.g. "http://localhost:5000".
// The HTTP client has no timeout: a request resolves or the caller cancels ctx.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	c.breaker = newBreaker(DefaultBreaker, c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(s BreakerSettings, c *Client) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hospital-api",
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return s.Failures > 0 && counts.ConsecutiveFailures >= s.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// SearchHospitals lists hospitals matching locality. An empty locality is sent
// as-is and the server decides what it means.
func (c *Client) SearchHospitals(ctx context.Context, locality string) ([]Hospital, error) {
	q := url.Values{"locality": {locality}}
	var out []Hospital
	if err := c.do(ctx, "search hospitals", http.MethodGet, "/api/hospitals?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDoctors returns every doctor at the hospital.
func (c *Client) ListDoctors(ctx context.Context, hospitalID ID) ([]Doctor, error) {
	var out []Doctor
	path := "/api/hospital/" + url.PathEscape(hospitalID.String()) + "/doctors"
	if err := c.do(ctx, "list doctors", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DoctorAvailability reports whether a doctor takes bookings and how many are open.
func (c *Client) DoctorAvailability(ctx context.Context, doctorID ID) (*Availability, error) {
	var out Availability
	path := "/api/doctor/" + url.PathEscape(doctorID.String()) + "/availability"
	if err := c.do(ctx, "doctor availability", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. The server may answer without an identity.
func (c *Client) Register(ctx context.Context, username, password string) (*Identity, error) {
	var out Identity
	body := credentials{Username: username, Password: password, FullName: username}
	if err := c.do(ctx, "register", http.MethodPost, "/api/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and returns the identity.
func (c *Client) Login(ctx context.Context, username, password string) (*Identity, error) {
	var out Identity
	body := credentials{Username: username, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/api/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the server the user left. The response shape is not used.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil)
}

// Book creates an appointment.
func (c *Client) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	var out BookingResult
	if err := c.do(ctx, "book", http.MethodPost, "/api/book", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the user's bookings.
func (c *Client) History(ctx context.Context, userID ID) ([]Booking, error) {
	var out []Booking
	path := "/api/history/" + url.PathEscape(userID.String())
	if err := c.do(ctx, "history", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearHistory removes every booking of the user.
func (c *Client) ClearHistory(ctx context.Context, userID ID) error {
	path := "/api/history/" + url.PathEscape(userID.String()) + "/clear"
	return c.do(ctx, "clear history", http.MethodPost, path, ownerBody{UserID: userID}, nil)
}

// CancelAppointment cancels one booking owned by userID.
func (c *Client) CancelAppointment(ctx context.Context, appointmentID, userID ID) error {
	path := "/api/appointment/" + url.PathEscape(appointmentID.String()) + "/cancel"
	return c.do(ctx, "cancel appointment", http.MethodPost, path, ownerBody{UserID: userID}, nil)
}

// rawResponse is what the breaker-protected call hands back.
type rawResponse struct {
	status  int
	payload []byte
}

var errServerFailure = errors.New("server failure")

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	c.logger.Debug("api request", zap.String("op", op), zap.String("method", method),
		zap.String("path", path), zap.String("request_id", reqID))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, payload: payload}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, errServerFailure
		}
		return raw, nil
	})

	raw, _ := result.(*rawResponse)
	if err != nil && raw == nil {
		c.logger.Warn("api request failed", zap.String("op", op), zap.String("request_id", reqID), zap.Error(err))
		return &NetworkError{Op: op, Err: err}
	}

	if raw.status < 200 || raw.status > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw.payload, &eb)
		c.logger.Info("api request rejected", zap.String("op", op), zap.Int("status", raw.status),
			zap.String("request_id", reqID), zap.String("error", eb.Error))
		return &NetworkError{Op: op, Status: raw.status, Message: eb.Error}
	}

	if out == nil || len(bytes.TrimSpace(raw.payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.payload, out); err != nil {
		return &NetworkError{Op: op, Status: raw.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
