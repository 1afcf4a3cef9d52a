// Package transport provides the collaborator adapters at the engine's
// edges: an HTTP client for the evaluation service and a WebSocket client
// for the push event channel. The core engine depends only on the narrow
// interfaces these adapters implement, never on the wire details.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mkritz/bulkeval/internal/domain"
	"github.com/mkritz/bulkeval/internal/scheduler"
)

// maxErrorBodyBytes bounds how much of an error response body is echoed into
// error messages.
const maxErrorBodyBytes = 2048

// ServiceClient implements scheduler.EvaluationService over HTTP. One POST
// per submission, awaited until the service responds with the terminal
// summary; the caller's context carries the overall deadline.
type ServiceClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// ServiceOption configures a ServiceClient.
type ServiceOption func(*ServiceClient)

// WithHTTPClient replaces the underlying HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *ServiceClient) { s.client = c }
}

// WithServiceLogger sets the structured logger. Defaults to slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *ServiceClient) { s.logger = logger }
}

// NewServiceClient creates a client for the evaluation service at baseURL.
// The client carries no timeout of its own: the submission deadline comes in
// through the request context.
func NewServiceClient(baseURL string, opts ...ServiceOption) *ServiceClient {
	s := &ServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ scheduler.EvaluationService = (*ServiceClient)(nil)

// EvaluateBatch implements scheduler.EvaluationService. It POSTs the batch
// request as JSON and decodes the terminal summary from the response.
// Transport faults, non-2xx statuses, and undecodable bodies all return
// errors; classification into the engine taxonomy happens in the scheduler.
func (s *ServiceClient) EvaluateBatch(ctx context.Context, req scheduler.BatchRequest) (*domain.EvaluationSummary, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/evaluations/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("evaluation service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("evaluation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var summary domain.EvaluationSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decode evaluation summary: %w", err)
	}

	s.logger.Debug("evaluation summary received",
		"correlation_id", req.CorrelationID,
		"total", summary.Total)
	return &summary, nil
}
