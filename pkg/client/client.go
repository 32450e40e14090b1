// Package client is a small HTTP client for the context worker API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// DefaultPort is the worker's default listen port.
	DefaultPort = 37810

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// HealthCheckTimeout bounds a health probe.
	HealthCheckTimeout = time.Second
)

// APIError is a non-2xx response from the worker.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker returned %d", e.StatusCode)
	}
	return fmt.Sprintf("worker returned %d: %s", e.StatusCode, e.Message)
}

// IsUnavailable reports whether err means the worker is still initializing.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable
}

// ContextRequest asks the worker to assemble context for one query.
type ContextRequest struct {
	AthleteID   string           `json:"athlete_id"`
	Query       string           `json:"query"`
	QueryType   models.QueryType `json:"query_type,omitempty"`
	Level       string           `json:"level,omitempty"`
	TotalBudget int              `json:"total_budget,omitempty"`
}

// ContextResponse carries the assembled context and its statistics.
type ContextResponse struct {
	Context   *models.EnhancedContext `json:"context"`
	Stats     models.ContextStats     `json:"stats"`
	RequestID string                  `json:"request_id,omitempty"`
}

// Classification is the worker's reading of a free-text query.
type Classification struct {
	QueryType   models.QueryType `json:"query_type"`
	WorkoutType string           `json:"workout_type,omitempty"`
}

// Health is the worker health payload.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Client talks to one worker.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the worker at baseURL, e.g. http://127.0.0.1:37810.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv builds a client from COACHCTX_WORKER_HOST, COACHCTX_WORKER_PORT
// and COACHCTX_API_TOKEN.
func FromEnv() *Client {
	host := os.Getenv("COACHCTX_WORKER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := DefaultPort
	if v := os.Getenv("COACHCTX_WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			port = p
		}
	}
	return New(fmt.Sprintf("http://%s:%d", host, port), WithToken(os.Getenv("COACHCTX_API_TOKEN")))
}

// Context assembles the three-layer context for req.
func (c *Client) Context(ctx context.Context, req ContextRequest) (*ContextResponse, error) {
	var out ContextResponse
	if err := c.do(ctx, http.MethodPost, "/api/context", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Classify returns the query type the worker infers for text.
func (c *Client) Classify(ctx context.Context, text string) (*Classification, error) {
	var out Classification
	if err := c.do(ctx, http.MethodPost, "/api/classify", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the worker health payload.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports whether the worker has finished initializing.
func (c *Client) Ready(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/ready", nil, nil) == nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
