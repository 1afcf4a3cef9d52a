package domain

import (
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle state of an evaluation session.
// Transitions follow: Idle -> Running -> (Paused <-> Running) ->
// (Completed|Cancelled|Failed) -> Idle via Clear.
type SessionStatus string

const (
	// StatusIdle indicates no session is active; a new run may start.
	StatusIdle SessionStatus = "idle"

	// StatusRunning indicates a batch submission is in flight and live
	// events are being applied.
	StatusRunning SessionStatus = "running"

	// StatusPaused indicates the session no longer applies live progress
	// updates. Pausing is advisory: it does not stop the remote batch.
	StatusPaused SessionStatus = "paused"

	// StatusCompleted indicates the terminal summary arrived and the result
	// list reflects it.
	StatusCompleted SessionStatus = "completed"

	// StatusCancelled indicates the caller abandoned the run. Later events
	// for its correlation id are dropped locally; the remote computation is
	// not guaranteed to halt.
	StatusCancelled SessionStatus = "cancelled"

	// StatusFailed indicates the evaluation call itself failed. Partial
	// streamed results are retained.
	StatusFailed SessionStatus = "failed"
)

// IsTerminal reports whether the status ends a run. Terminal sessions accept
// no further events and may be cleared back to idle.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// startable reports whether a new run may begin from this status.
func (s SessionStatus) startable() bool {
	return s == StatusIdle || s.IsTerminal()
}

// estimatePerBatch is the rough per-batch duration used to seed the
// remaining-time estimate before streamed progress refines it.
// The exact figure is a heuristic, not a contract.
const estimatePerBatch = 2 * time.Second

// Session is the externally visible state of one bulk evaluation run.
// It is a value: every transition is a pure function returning a new Session,
// and a single writer (the session manager) applies them. CurrentIndex is
// monotonically non-decreasing while Running.
type Session struct {
	// ID is the opaque correlation id binding this run to its event stream.
	// Unique per run; empty while idle.
	ID string `json:"id"`

	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`

	// Total is the number of questions submitted.
	Total int `json:"total"`

	// BatchSize is the parallelism hint passed to the remote evaluator.
	BatchSize int `json:"batch_size"`

	// CurrentIndex is the most recently reported question index.
	CurrentIndex int `json:"current_index"`

	// StartTime records when the run started; zero while idle.
	StartTime time.Time `json:"start_time"`

	// EstimatedRemaining is the rough remaining duration, refined by
	// streamed progress events.
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// FailureMessage carries the single summary error of a failed run.
	FailureMessage string `json:"failure_message,omitempty"`
}

// NewSession returns an idle session with no run attached.
func NewSession() Session {
	return Session{Status: StatusIdle}
}

// Start transitions into Running for a new run. Legal only from Idle or a
// terminal status; a running or paused session must be cancelled or cleared
// first. The correlation id must be freshly minted per run so stale events
// from a prior run cannot leak in.
func (s Session) Start(id string, total, batchSize int, now time.Time) (Session, error) {
	if !s.Status.startable() {
		return s, fmt.Errorf("start from %s: %w", s.Status, ErrSessionConflict)
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	batches := (total + batchSize - 1) / batchSize
	return Session{
		ID:                 id,
		Status:             StatusRunning,
		Total:              total,
		BatchSize:          batchSize,
		CurrentIndex:       0,
		StartTime:          now,
		EstimatedRemaining: time.Duration(batches) * estimatePerBatch,
	}, nil
}

// Pause transitions Running -> Paused. Advisory only: the in-flight remote
// submission continues; the session merely stops folding live progress into
// its visible state.
func (s Session) Pause() (Session, error) {
	if s.Status != StatusRunning {
		return s, fmt.Errorf("pause from %s: %w", s.Status, ErrInvalidTransition)
	}
	s.Status = StatusPaused
	return s, nil
}

// Resume transitions Paused -> Running.
func (s Session) Resume() (Session, error) {
	if s.Status != StatusPaused {
		return s, fmt.Errorf("resume from %s: %w", s.Status, ErrInvalidTransition)
	}
	s.Status = StatusRunning
	return s, nil
}

// ApplyProgress folds a streamed progress event into the session. Progress
// is applied only while Running, and CurrentIndex never moves backwards.
func (s Session) ApplyProgress(ev ProgressEvent) Session {
	if s.Status != StatusRunning {
		return s
	}
	if ev.CurrentQuestionIndex > s.CurrentIndex {
		s.CurrentIndex = ev.CurrentQuestionIndex
	}
	if ev.EstimatedRemainingSecs >= 0 {
		s.EstimatedRemaining = time.Duration(ev.EstimatedRemainingSecs * float64(time.Second))
	}
	return s
}

// Complete transitions into Completed after the terminal summary arrived.
// Legal from Running or Paused; the summary supersedes streamed state.
func (s Session) Complete() (Session, error) {
	if s.Status != StatusRunning && s.Status != StatusPaused {
		return s, fmt.Errorf("complete from %s: %w", s.Status, ErrInvalidTransition)
	}
	s.Status = StatusCompleted
	s.CurrentIndex = s.Total
	s.EstimatedRemaining = 0
	return s, nil
}

// Fail transitions into Failed, recording the single summary error message.
// Legal from Running or Paused. Partial streamed results are kept by the
// manager; the session value only carries the failure text.
func (s Session) Fail(msg string) (Session, error) {
	if s.Status != StatusRunning && s.Status != StatusPaused {
		return s, fmt.Errorf("fail from %s: %w", s.Status, ErrInvalidTransition)
	}
	s.Status = StatusFailed
	s.FailureMessage = msg
	s.EstimatedRemaining = 0
	return s, nil
}

// Cancel abandons an active run, resetting counters and timing. The result
// list is discarded by the manager. Cancellation is local-only: subsequent
// events for this correlation id are dropped, but the remote computation is
// not guaranteed to halt.
func (s Session) Cancel() (Session, error) {
	if s.Status != StatusRunning && s.Status != StatusPaused {
		return s, fmt.Errorf("cancel from %s: %w", s.Status, ErrInvalidTransition)
	}
	return Session{
		ID:     s.ID,
		Status: StatusCancelled,
	}, nil
}

// Clear releases a finished run entirely, returning to Idle. Legal only from
// a terminal status. The next Start must mint a fresh correlation id.
func (s Session) Clear() (Session, error) {
	if !s.Status.IsTerminal() {
		return s, fmt.Errorf("clear from %s: %w", s.Status, ErrInvalidTransition)
	}
	return NewSession(), nil
}
