// Package engine is the public entry point for embedding callers. It wires
// the collaborator adapters, batch scheduler, and session manager into one
// Engine exposing the full evaluation lifecycle: parse a dataset, start a
// run, observe live snapshots, pause/resume/cancel, and export a report.
package engine

import (
	"context"
	"log/slog"

	"github.com/mkritz/bulkeval/internal/config"
	"github.com/mkritz/bulkeval/internal/dataset"
	"github.com/mkritz/bulkeval/internal/domain"
	"github.com/mkritz/bulkeval/internal/scheduler"
	"github.com/mkritz/bulkeval/internal/session"
	"github.com/mkritz/bulkeval/internal/transport"
	"github.com/mkritz/bulkeval/pkg/events"
)

// Dataset is the validated form of an uploaded CSV.
type Dataset = domain.ParsedDataset

// Snapshot is a point-in-time view of the active session.
type Snapshot = session.Snapshot

// Config is the engine configuration loaded from YAML.
type Config = config.Config

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// ParseDataset validates raw CSV text into a Dataset. It never fails;
// problems are recorded on the dataset's error list.
func ParseDataset(raw string) Dataset { return dataset.Parse(raw) }

// Engine drives bulk evaluation runs against a remote evaluation service.
// At most one session is active at a time.
type Engine struct {
	cfg     Config
	manager *session.Manager
	socket  *transport.SocketStream
}

// New connects the engine to the collaborators named in cfg: the evaluation
// service over HTTP and the push event channel over WebSocket. The logger
// may be nil.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	socket, err := transport.DialSocket(ctx, cfg.SocketURL, logger)
	if err != nil {
		return nil, err
	}

	svc := transport.NewServiceClient(cfg.ServiceURL, transport.WithServiceLogger(logger))
	sched := scheduler.New(svc,
		scheduler.WithLogger(logger),
		scheduler.WithPerQuestionBudget(cfg.PerQuestionBudget()))

	return &Engine{
		cfg:     cfg,
		manager: session.NewManager(sched, socket, logger),
		socket:  socket,
	}, nil
}

// NewWithCollaborators builds an engine on caller-supplied collaborators
// instead of dialing real endpoints. Used by automation scripts and tests
// that stand in for the remote service and event channel.
func NewWithCollaborators(cfg Config, svc scheduler.EvaluationService, str events.Stream, logger *slog.Logger) *Engine {
	sched := scheduler.New(svc,
		scheduler.WithLogger(logger),
		scheduler.WithPerQuestionBudget(cfg.PerQuestionBudget()))
	return &Engine{
		cfg:     cfg,
		manager: session.NewManager(sched, str, logger),
	}
}

// Start begins a run over the dataset using the configured agent. It returns
// the run's correlation id without blocking on the evaluation.
func (e *Engine) Start(ctx context.Context, ds Dataset) (string, error) {
	return e.manager.Start(ctx, ds, e.cfg.BatchConfig())
}

// Wait blocks until the active run reaches a terminal state or ctx is done.
func (e *Engine) Wait(ctx context.Context) error { return e.manager.Wait(ctx) }

// Pause stops live progress updates; the remote batch keeps running.
func (e *Engine) Pause() error { return e.manager.Pause() }

// Resume re-enables live progress updates.
func (e *Engine) Resume() error { return e.manager.Resume() }

// Cancel abandons the active run and drops its remaining events locally.
func (e *Engine) Cancel() error { return e.manager.Cancel() }

// Clear releases a finished session, returning the engine to idle.
func (e *Engine) Clear() error { return e.manager.Clear() }

// Snapshot returns the current session view: state, ordered results,
// derived statistics, and the rolling diagnostic log.
func (e *Engine) Snapshot() Snapshot { return e.manager.Snapshot() }

// ExportCSV renders the current result list as CSV bytes.
func (e *Engine) ExportCSV() []byte { return e.manager.ExportCSV() }

// ExportJSON renders the current result list as a pretty-printed JSON report.
func (e *Engine) ExportJSON() ([]byte, error) { return e.manager.ExportJSON() }

// Close releases the engine's connections. The active session, if any,
// should be cancelled or cleared first.
func (e *Engine) Close() {
	if e.socket != nil {
		e.socket.Close()
	}
}
