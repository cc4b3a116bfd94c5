// Package api provides the HTTP gateway to the booking service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/bookd/internal/metrics"
)

// Gateway performs JSON calls against the booking API with consistent
// headers and uniform error surfacing. It never retries.
type Gateway struct {
	baseURL    string
	routes     Routes
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGateway creates a gateway for baseURL.
func NewGateway(baseURL string, routes Routes, timeout time.Duration, rateLimitRPS float64) *Gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 10.0
	}

	// Cookie jar keeps the server session for credentialed calls (logout).
	jar, _ := cookiejar.New(nil)

	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		routes:  routes,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(rateLimitRPS), int(rateLimitRPS)+1),
	}
}

// Call performs method on endpoint. body is JSON-encoded when non-nil and
// token, when non-empty, is sent as a bearer token. The decoded 2xx body is
// returned raw; an empty body yields nil.
func (g *Gateway) Call(ctx context.Context, endpoint, method string, body any, token string) (json.RawMessage, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &Error{Cause: err}
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(method, 0, time.Since(start))
		log.Debug().Err(err).
			Str("method", method).
			Str("endpoint", endpoint).
			Str("request_id", requestID).
			Msg("API request failed")
		return nil, &Error{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &Error{Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", requestID).
		Msg("API request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Status:        resp.StatusCode,
			ServerMessage: serverMessage(data),
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &Error{
			Status:        resp.StatusCode,
			ServerMessage: "invalid JSON in response",
			Cause:         fmt.Errorf("response from %s %s is not JSON", method, endpoint),
		}
	}
	return json.RawMessage(data), nil
}

type requestIDKey struct{}

// WithRequestID makes calls under ctx send id as X-Request-ID, so one
// operation can be correlated across logs and the ledger.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Close releases idle connections.
func (g *Gateway) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// serverMessage extracts {"message": ...} from an error body, falling back
// to the raw text.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
