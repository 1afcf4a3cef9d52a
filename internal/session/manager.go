// Package session implements the evaluation session state machine and the
// single-writer mutation path that keeps it consistent.
//
// Two concurrent sources mutate a running session: the awaited terminal
// response from the batch scheduler, and the independently arriving stream of
// progress and result events. Both funnel into one reducer goroutine per run,
// so the terminal summary and trailing streamed events can never race. All
// state transitions are pure functions on the domain.Session value; the
// Manager is the only writer that applies them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkritz/bulkeval/internal/aggregation"
	"github.com/mkritz/bulkeval/internal/domain"
	"github.com/mkritz/bulkeval/internal/scheduler"
	"github.com/mkritz/bulkeval/internal/stream"
	"github.com/mkritz/bulkeval/pkg/events"
)

// reducerBuffer bounds the per-run reducer channel. Streamed events beyond
// the buffer back up into the stream's own eviction policy, never into the
// publishing side.
const reducerBuffer = 1024

// Snapshot is a point-in-time, caller-owned view of the session: the state
// machine value, the result list in question-index order, statistics derived
// from it, and the rolling diagnostic log.
type Snapshot struct {
	Session domain.Session
	Results []domain.EvaluationResult
	Stats   domain.AggregateStats
	Logs    []string
}

// reducerMsg is one decoded streamed event bound for the reducer.
type reducerMsg struct {
	progress *domain.ProgressEvent
	result   *domain.ResultEvent
}

// terminalMsg carries the awaited outcome of the batch submission.
type terminalMsg struct {
	summary *domain.EvaluationSummary
	err     error
}

// run holds the per-run plumbing: the reducer channel both mutation sources
// funnel into, the consumer owning the event subscription, and the submit
// cancellation hook used for best-effort remote abort.
type run struct {
	id           string
	reduce       chan reducerMsg
	terminal     chan terminalMsg
	done         chan struct{}
	cancelSubmit context.CancelFunc
	consumer     *stream.Consumer
}

// runSink adapts a run's reducer channel to the stream.Sink interface.
// Sends are abandoned once the run's reducer has exited so a draining
// consumer can never block forever.
type runSink struct{ r *run }

func (s runSink) ApplyProgress(ev domain.ProgressEvent) {
	select {
	case s.r.reduce <- reducerMsg{progress: &ev}:
	case <-s.r.done:
	}
}

func (s runSink) ApplyResult(ev domain.ResultEvent) {
	select {
	case s.r.reduce <- reducerMsg{result: &ev}:
	case <-s.r.done:
	}
}

// Manager owns at most one evaluation session at a time. It exposes the
// start/pause/resume/cancel/clear lifecycle to the embedding caller and keeps
// the externally visible state consistent under concurrent event arrival.
// All methods are safe for concurrent use.
type Manager struct {
	sched  *scheduler.Scheduler
	stream events.Stream
	logger *slog.Logger

	mu         sync.Mutex
	sess       domain.Session
	dataset    *domain.ParsedDataset
	agentName  string
	results    map[int]domain.EvaluationResult
	runErr     error
	finishedAt time.Time
	cur        *run
}

// NewManager creates a Manager submitting through sched and consuming events
// from str. The logger may be nil.
func NewManager(sched *scheduler.Scheduler, str events.Stream, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sched:  sched,
		stream: str,
		logger: logger,
		sess:   domain.NewSession(),
	}
}

// Start begins a new evaluation run and returns its correlation id. The
// dataset must be valid and no session may currently be Running or Paused;
// violations are returned synchronously before any remote call and leave the
// existing session untouched. A fresh correlation id is minted when the
// config does not carry one, and the batch size defaults when unset.
//
// Start does not block on the evaluation itself: the submission is awaited on
// an internal goroutine whose terminal outcome, along with streamed events,
// is applied by the run's single reducer. Use Wait to observe completion.
func (m *Manager) Start(ctx context.Context, ds domain.ParsedDataset, cfg domain.BatchConfig) (string, error) {
	if !ds.Valid {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(ds.Errors, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.CorrelationID == "" {
		cfg.CorrelationID = uuid.NewString()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = domain.DefaultBatchSize
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	next, err := m.sess.Start(cfg.CorrelationID, len(ds.Rows), cfg.BatchSize, time.Now())
	if err != nil {
		return "", err
	}

	r := &run{
		id:       cfg.CorrelationID,
		reduce:   make(chan reducerMsg, reducerBuffer),
		terminal: make(chan terminalMsg, 1),
		done:     make(chan struct{}),
	}

	consumer, err := stream.NewConsumer(m.stream, cfg.CorrelationID, runSink{r}, m.logger)
	if err != nil {
		return "", fmt.Errorf("event subscription: %w", err)
	}
	r.consumer = consumer

	submitCtx, cancelSubmit := context.WithCancel(ctx)
	r.cancelSubmit = cancelSubmit

	dsCopy := ds
	m.sess = next
	m.dataset = &dsCopy
	m.agentName = cfg.AgentName
	m.results = make(map[int]domain.EvaluationResult, len(ds.Rows))
	m.runErr = nil
	m.finishedAt = time.Time{}
	m.cur = r

	m.logger.Info("evaluation session started",
		"correlation_id", r.id,
		"total", len(ds.Rows),
		"batch_size", cfg.BatchSize)

	go func() {
		summary, submitErr := m.sched.Submit(submitCtx, dsCopy, cfg)
		r.terminal <- terminalMsg{summary: summary, err: submitErr}
	}()
	go m.reduceLoop(r)

	return r.id, nil
}

// Wait blocks until the current run reaches a terminal state or ctx is done.
// It returns the run's terminal error: nil for Completed (and for Cancelled,
// which is a caller decision, not a failure), or the wrapped remote failure.
// With no run active, Wait returns immediately.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	r := m.cur
	m.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops folding live progress updates into the visible session state.
// Advisory only: the in-flight remote submission keeps running, and result
// events continue to be recorded.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.sess.Pause()
	if err != nil {
		return err
	}
	m.sess = next
	m.logger.Info("session paused", "correlation_id", m.sess.ID)
	return nil
}

// Resume re-enables live progress updates for a paused session.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.sess.Resume()
	if err != nil {
		return err
	}
	m.sess = next
	m.logger.Info("session resumed", "correlation_id", m.sess.ID)
	return nil
}

// Cancel abandons the active run: visible counters reset, the result list is
// discarded, and every subsequent event for the run's correlation id is
// dropped locally. The submission context is cancelled as a best-effort
// abort, but the remote computation is not guaranteed to halt.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	next, err := m.sess.Cancel()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	r := m.cur
	m.sess = next
	m.results = make(map[int]domain.EvaluationResult)
	m.runErr = nil
	m.finishedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("session cancelled", "correlation_id", next.ID)
	if r != nil {
		r.cancelSubmit()
		r.consumer.Close()
	}
	return nil
}

// Clear releases a finished session entirely, returning to Idle. The next
// Start mints a fresh correlation id; nothing from the cleared run can leak
// into it.
func (m *Manager) Clear() error {
	m.mu.Lock()
	next, err := m.sess.Clear()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	r := m.cur
	prevID := m.sess.ID
	m.sess = next
	m.dataset = nil
	m.agentName = ""
	m.results = nil
	m.runErr = nil
	m.finishedAt = time.Time{}
	m.cur = nil
	m.mu.Unlock()

	m.logger.Info("session cleared", "correlation_id", prevID)
	if r != nil {
		r.cancelSubmit()
		r.consumer.Close()
	}
	return nil
}

// Snapshot returns a consistent point-in-time view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]domain.EvaluationResult, 0, len(m.results))
	for _, res := range m.results {
		results = append(results, res)
	}
	sorted := aggregation.SortResults(results)

	var logs []string
	if m.cur != nil {
		logs = m.cur.consumer.Logs()
	}

	return Snapshot{
		Session: m.sess,
		Results: sorted,
		Stats:   aggregation.ComputeStats(sorted, m.elapsedLocked()),
		Logs:    logs,
	}
}

// ExportCSV renders the current result list as CSV.
func (m *Manager) ExportCSV() []byte {
	snap := m.Snapshot()
	return aggregation.ExportCSV(snap.Results)
}

// ExportJSON renders the current result list as a pretty-printed JSON report.
func (m *Manager) ExportJSON() ([]byte, error) {
	m.mu.Lock()
	agentName := m.agentName
	m.mu.Unlock()

	snap := m.Snapshot()
	meta := aggregation.ExportMetadata{
		ExportDate:     time.Now(),
		AgentName:      agentName,
		AggregateStats: snap.Stats,
	}
	return aggregation.ExportJSON(meta, snap.Results)
}

// elapsedLocked returns the session's wall-clock duration: frozen at the
// terminal timestamp once finished, live while running. Callers hold m.mu.
func (m *Manager) elapsedLocked() time.Duration {
	if m.sess.StartTime.IsZero() {
		return 0
	}
	if !m.finishedAt.IsZero() {
		return m.finishedAt.Sub(m.sess.StartTime)
	}
	return time.Since(m.sess.StartTime)
}

// reduceLoop is the run's single writer. It folds streamed events and the
// terminal submission outcome into manager state until the terminal outcome
// arrives, then tears the subscription down. Every application is guarded by
// run identity so a superseded run can never touch current state.
func (m *Manager) reduceLoop(r *run) {
	for {
		select {
		case msg := <-r.reduce:
			m.applyMessage(r, msg)
		case t := <-r.terminal:
			m.applyTerminal(r, t)
			close(r.done)
			r.consumer.Close()
			return
		}
	}
}

// applyMessage folds one streamed event into session state. Progress events
// are applied only while Running (the state machine enforces this); result
// events are recorded while the run is live, keyed by question index with
// idempotent overwrite.
func (m *Manager) applyMessage(r *run, msg reducerMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != r {
		return
	}

	switch {
	case msg.progress != nil:
		m.sess = m.sess.ApplyProgress(*msg.progress)
	case msg.result != nil:
		if m.sess.Status.IsTerminal() || m.sess.Status == domain.StatusIdle {
			return
		}
		res := msg.result.Result(m.dataset)
		if res.QuestionIndex < 0 || res.QuestionIndex >= m.sess.Total {
			m.logger.Warn("dropping result event with out-of-range index",
				"correlation_id", r.id, "question_index", res.QuestionIndex)
			return
		}
		m.results[res.QuestionIndex] = res
	}
}

// applyTerminal folds the awaited submission outcome into session state. The
// terminal summary supersedes streamed partial state for the same indices. A
// run that was cancelled or superseded before its submission returned is
// ignored entirely.
func (m *Manager) applyTerminal(r *run, t terminalMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != r {
		return
	}
	if m.sess.Status != domain.StatusRunning && m.sess.Status != domain.StatusPaused {
		return
	}

	if t.err != nil {
		next, err := m.sess.Fail(t.err.Error())
		if err != nil {
			return
		}
		// Partial streamed results are retained for diagnosis.
		m.sess = next
		m.runErr = t.err
		m.finishedAt = time.Now()
		m.logger.Error("session failed", "correlation_id", r.id, "error", t.err)
		return
	}

	next, err := m.sess.Complete()
	if err != nil {
		return
	}
	m.sess = next
	m.results = make(map[int]domain.EvaluationResult, len(t.summary.Results))
	for _, res := range t.summary.Results {
		if res.ExpectedAnswer == "" && m.dataset != nil &&
			res.QuestionIndex >= 0 && res.QuestionIndex < len(m.dataset.Rows) {
			res.ExpectedAnswer = m.dataset.Rows[res.QuestionIndex].ExpectedAnswer
		}
		m.results[res.QuestionIndex] = res
	}
	m.runErr = nil
	m.finishedAt = time.Now()
	m.logger.Info("session completed",
		"correlation_id", r.id,
		"total", t.summary.Total,
		"successful", t.summary.Successful,
		"failed", t.summary.Failed)
}
