// Package client provides the GraphQL fetchers for the Morpho API and the
// Morpho Blue subgraph, and the per-entity fetch modules built on them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/metrics"
)

// APIError represents a non-2xx HTTP response
type APIError struct {
	StatusCode int
	Code       *string
	Message    string
	Data       any
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, *e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// GraphQLError is one entry of a GraphQL "errors" array
type GraphQLError struct {
	Message    string         `json:"message"`
	Status     string         `json:"status,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *GraphQLError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("graphql error (%s): %s", e.Status, e.Message)
	}
	return "graphql error: " + e.Message
}

// IsNotFound reports whether the error belongs to the NOT_FOUND class
func (e *GraphQLError) IsNotFound() bool {
	if strings.Contains(strings.ToUpper(e.Status), "NOT_FOUND") {
		return true
	}
	code, _ := e.Extensions["code"].(string)
	return strings.Contains(strings.ToUpper(code), "NOT_FOUND")
}

// Response is a raw GraphQL response envelope
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// HasData reports whether the response carries a non-null data payload
func (r *Response) HasData() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Decode unmarshals the data payload into out. A null payload leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || !r.HasData() {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// API is the base client for POSTing GraphQL queries to one endpoint
type API struct {
	BaseURL    string
	HTTPClient *http.Client
	timeout    time.Duration

	source  string
	limiter *rate.Limiter
	log     *logger.Entry
	metrics *metrics.Collectors
}

// Option customizes an API
type Option func(*API)

// WithLogger sets the logger; the default discards
func WithLogger(l *logger.Entry) Option {
	return func(a *API) { a.log = l }
}

// WithMetrics records requests into m
func WithMetrics(m *metrics.Collectors) Option {
	return func(a *API) { a.metrics = m }
}

// WithRateLimit caps outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithSource labels the endpoint in logs and metrics (api, subgraph)
func WithSource(source string) Option {
	return func(a *API) { a.source = source }
}

// NewAPI creates a new API client
// If baseURL is empty, it defaults to MorphoAPIURL
// If timeout is 0, it defaults to DefaultTimeout
func NewAPI(baseURL string, timeout time.Duration, opts ...Option) *API {
	if baseURL == "" {
		baseURL = constants.MorphoAPIURL
	}

	if timeout == 0 {
		timeout = constants.DefaultTimeout * time.Second
	}

	a := &API{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
		source:  "api",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.OrDiscard(a.log, "client").WithFields(logger.Fields{"source": a.source})
	return a
}

// Post sends one GraphQL request. HTTP failures are returned as *APIError;
// GraphQL errors are left in the response for the caller to classify.
func (a *API) Post(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		a.metrics.ObserveRequest(a.source, "transport_error", time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		a.metrics.ObserveRequest(a.source, "transport_error", time.Since(start))
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		a.metrics.ObserveRequest(a.source, "http_error", time.Since(start))
		a.log.WithFields(logger.Fields{"status": resp.StatusCode, "request_id": requestID}).Warn("graphql http error")
		return nil, a.handleError(resp.StatusCode, respBody)
	}

	out := &Response{}
	if err := json.Unmarshal(respBody, out); err != nil {
		a.metrics.ObserveRequest(a.source, "decode_error", time.Since(start))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	outcome := "ok"
	if len(out.Errors) > 0 {
		outcome = "graphql_error"
	}
	a.metrics.ObserveRequest(a.source, outcome, time.Since(start))
	a.log.WithFields(logger.Fields{
		"request_id": requestID,
		"errors":     len(out.Errors),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("graphql request")

	return out, nil
}

// handleError processes error responses
func (a *API) handleError(statusCode int, body []byte) error {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Errors  []GraphQLError `json:"errors"`
		Data    any            `json:"data"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Code != "" {
			apiErr.Code = &errResp.Code
		}
		switch {
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		case len(errResp.Errors) > 0:
			apiErr.Message = errResp.Errors[0].Message
		}
		apiErr.Data = errResp.Data
	}

	return apiErr
}

// SetTimeout updates the HTTP client timeout
func (a *API) SetTimeout(timeout time.Duration) {
	a.timeout = timeout
	a.HTTPClient.Timeout = timeout
}
