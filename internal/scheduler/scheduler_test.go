package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkritz/bulkeval/internal/domain"
)

// stubService returns canned responses and records the requests it saw.
type stubService struct {
	mu      sync.Mutex
	reqs    []BatchRequest
	summary *domain.EvaluationSummary
	err     error
	block   bool
}

func (s *stubService) EvaluateBatch(ctx context.Context, req BatchRequest) (*domain.EvaluationSummary, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	block, summary, err := s.block, s.summary, s.err
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return summary, err
}

func (s *stubService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func validDataset() domain.ParsedDataset {
	return domain.ParsedDataset{
		Headers:        []string{"question"},
		QuestionColumn: "question",
		Valid:          true,
		Rows: []domain.QuestionRow{
			{Question: "What is 2+2?", ExpectedAnswer: "4"},
			{Question: "Capital of France?", ExpectedAnswer: "Paris"},
		},
	}
}

func validConfig() domain.BatchConfig {
	return domain.BatchConfig{
		AgentCode:     "agent-src",
		AgentName:     "support-bot",
		CorrelationID: "corr-42",
		BatchSize:     5,
	}
}

// TestSubmitSuccess verifies the full ordered question list and batch size
// hint reach the service and the summary is returned unchanged.
func TestSubmitSuccess(t *testing.T) {
	svc := &stubService{summary: &domain.EvaluationSummary{Total: 2, Successful: 2}}
	s := New(svc)

	summary, err := s.Submit(context.Background(), validDataset(), validConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)

	require.Equal(t, 1, svc.calls())
	req := svc.reqs[0]
	assert.Equal(t, "corr-42", req.CorrelationID)
	assert.Equal(t, 5, req.BatchSize)
	require.Len(t, req.Questions, 2)
	assert.Equal(t, "What is 2+2?", req.Questions[0].Question)
	assert.Equal(t, "Capital of France?", req.Questions[1].Question)
}

// TestSubmitInvalidDataset verifies an invalid or empty dataset is rejected
// before any remote call, with the validation errors in the message.
func TestSubmitInvalidDataset(t *testing.T) {
	svc := &stubService{}
	s := New(svc)

	ds := domain.ParsedDataset{}
	ds.AddError("no question column found")

	_, err := s.Submit(context.Background(), ds, validConfig())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "no question column found")
	assert.Zero(t, svc.calls(), "service must not be contacted")

	empty := domain.ParsedDataset{Valid: true}
	_, err = s.Submit(context.Background(), empty, validConfig())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, svc.calls())
}

// TestSubmitInvalidConfig verifies config validation runs before submission.
func TestSubmitInvalidConfig(t *testing.T) {
	svc := &stubService{}
	s := New(svc)

	cfg := validConfig()
	cfg.AgentCode = ""

	_, err := s.Submit(context.Background(), validDataset(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, svc.calls())
}

// TestSubmitConflict verifies a concurrent submission for the same
// correlation id is rejected without a second remote call.
func TestSubmitConflict(t *testing.T) {
	svc := &stubService{block: true}
	s := New(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Submit(ctx, validDataset(), validConfig())
	}()

	require.Eventually(t, func() bool { return svc.calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.Submit(context.Background(), validDataset(), validConfig())
	require.ErrorIs(t, err, domain.ErrSessionConflict)
	assert.Equal(t, 1, svc.calls())

	cancel()
	<-done

	// The slot is released once the first submission finishes.
	svc.mu.Lock()
	svc.block = false
	svc.summary = &domain.EvaluationSummary{Total: 2}
	svc.mu.Unlock()
	_, err = s.Submit(context.Background(), validDataset(), validConfig())
	require.NoError(t, err)
}

// TestSubmitRemoteFailure verifies service faults are classified as
// ErrRemoteFailure with the underlying message, without retry.
func TestSubmitRemoteFailure(t *testing.T) {
	svc := &stubService{err: errors.New("502 bad gateway")}
	s := New(svc)

	_, err := s.Submit(context.Background(), validDataset(), validConfig())
	require.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Contains(t, err.Error(), "502 bad gateway")
	assert.Equal(t, 1, svc.calls(), "no automatic retry")
}

// TestSubmitDeadline verifies the awaited call is bounded by the dataset
// size times the per-question budget.
func TestSubmitDeadline(t *testing.T) {
	svc := &stubService{block: true}
	s := New(svc, WithPerQuestionBudget(10*time.Millisecond))

	start := time.Now()
	_, err := s.Submit(context.Background(), validDataset(), validConfig())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, domain.ErrRemoteFailure)
	assert.Contains(t, err.Error(), "deadline")
	assert.Less(t, elapsed, time.Second)
}
