// Package scheduler submits validated datasets to the remote evaluation
// service and awaits the terminal summary. The scheduler enforces submission
// preconditions before any remote call, bounds the await with a deadline
// derived from the dataset size, and classifies failures into the engine's
// error taxonomy. It never retries a failed submission.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mkritz/bulkeval/internal/domain"
)

// EvaluationService is the external collaborator executing one batch. The
// call is long-running; while executing, the service may also emit progress
// and result events on the push event channel keyed by the correlation id.
type EvaluationService interface {
	// EvaluateBatch runs every question and returns the terminal summary.
	// Implementations must honor ctx cancellation for the local await, but
	// remote-side cancellation is not guaranteed.
	EvaluateBatch(ctx context.Context, req BatchRequest) (*domain.EvaluationSummary, error)
}

// BatchRequest is the single submission sent to the evaluation service,
// carrying the full ordered question list and the batch-size hint.
type BatchRequest struct {
	AgentCode        string               `json:"agent_code"`
	AgentName        string               `json:"agent_name"`
	AgentDescription string               `json:"agent_description,omitempty"`
	Context          string               `json:"context,omitempty"`
	CorrelationID    string               `json:"correlation_id"`
	BatchSize        int                  `json:"batch_size"`
	Questions        []domain.QuestionRow `json:"questions"`
}

// Scheduler issues exactly one evaluation call per submission. A mutex-guarded
// in-flight set rejects concurrent submissions for the same correlation id
// without contacting the remote service.
type Scheduler struct {
	svc    EvaluationService
	logger *slog.Logger

	// perQuestionBudget bounds the awaited call: deadline = len(rows) * budget.
	perQuestionBudget time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithPerQuestionBudget overrides the per-question time budget used to derive
// the overall submission deadline.
func WithPerQuestionBudget(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.perQuestionBudget = d
		}
	}
}

// New creates a Scheduler for the given evaluation service.
func New(svc EvaluationService, opts ...Option) *Scheduler {
	s := &Scheduler{
		svc:               svc,
		logger:            slog.Default(),
		perQuestionBudget: domain.DefaultPerQuestionBudget,
		inflight:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the dataset to the evaluation service and awaits the terminal
// summary. Preconditions are checked synchronously before any remote call:
// the dataset must be valid, the config must validate, and no submission for
// the same correlation id may be in flight. The awaited call is bounded by
// total*perQuestionBudget; deadline expiry and service faults both surface as
// ErrRemoteFailure with the underlying message. Submit never retries.
func (s *Scheduler) Submit(ctx context.Context, ds domain.ParsedDataset, cfg domain.BatchConfig) (*domain.EvaluationSummary, error) {
	if !ds.Valid {
		return nil, fmt.Errorf("%w: dataset invalid: %s", domain.ErrInvalidInput, strings.Join(ds.Errors, "; "))
	}
	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("%w: dataset has no rows", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.acquire(cfg.CorrelationID); err != nil {
		return nil, err
	}
	defer s.release(cfg.CorrelationID)

	deadline := time.Duration(len(ds.Rows)) * s.perQuestionBudget
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	questions := make([]domain.QuestionRow, len(ds.Rows))
	for i, row := range ds.Rows {
		questions[i] = row.Clone()
	}

	s.logger.Info("submitting evaluation batch",
		"correlation_id", cfg.CorrelationID,
		"questions", len(questions),
		"batch_size", cfg.BatchSize,
		"deadline", deadline)

	started := time.Now()
	summary, err := s.svc.EvaluateBatch(ctx, BatchRequest{
		AgentCode:        cfg.AgentCode,
		AgentName:        cfg.AgentName,
		AgentDescription: cfg.AgentDescription,
		Context:          cfg.Context,
		CorrelationID:    cfg.CorrelationID,
		BatchSize:        cfg.BatchSize,
		Questions:        questions,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: deadline of %s exceeded: %v", domain.ErrRemoteFailure, deadline, err)
		} else {
			err = fmt.Errorf("%w: %v", domain.ErrRemoteFailure, err)
		}
		s.logger.Error("evaluation batch failed",
			"correlation_id", cfg.CorrelationID,
			"elapsed", time.Since(started),
			"error", err)
		return nil, err
	}

	s.logger.Info("evaluation batch completed",
		"correlation_id", cfg.CorrelationID,
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"elapsed", time.Since(started))
	return summary, nil
}

// acquire marks a correlation id in flight, rejecting duplicates.
func (s *Scheduler) acquire(correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[correlationID]; exists {
		return fmt.Errorf("correlation id %s: %w", correlationID, domain.ErrSessionConflict)
	}
	s.inflight[correlationID] = struct{}{}
	return nil
}

// release clears the in-flight mark for a correlation id.
func (s *Scheduler) release(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, correlationID)
}
