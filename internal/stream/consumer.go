// Package stream consumes the push event channel for one evaluation session.
// A Consumer subscribes to exactly one correlation id, decodes envelope
// payloads into typed domain events, forwards them to a sink, and retains a
// bounded rolling log of raw diagnostic lines. Consumption runs on the
// consumer's own goroutine and never blocks the caller.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mkritz/bulkeval/internal/domain"
	"github.com/mkritz/bulkeval/pkg/events"
)

// Sink receives decoded events from the stream. The session manager
// implements Sink by funneling events into its single reducer, so sink
// methods must be safe to call from the consumer goroutine.
type Sink interface {
	// ApplyProgress delivers a decoded progress event.
	ApplyProgress(ev domain.ProgressEvent)

	// ApplyResult delivers a decoded per-question result event.
	ApplyResult(ev domain.ResultEvent)
}

// Consumer owns the subscription for one correlation id. It is created when
// a session starts and closed when the session reaches a terminal state or is
// cleared; after Close no further events are applied.
type Consumer struct {
	correlationID string
	logs          *RollingLog
	logger        *slog.Logger

	cancel    func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewConsumer subscribes to the stream for the given correlation id and
// starts the consume loop. The logger may be nil.
func NewConsumer(str events.Stream, correlationID string, sink Sink, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch, cancel, err := str.Subscribe(correlationID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", correlationID, err)
	}

	c := &Consumer{
		correlationID: correlationID,
		logs:          NewRollingLog(DefaultLogCapacity),
		logger:        logger,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go c.consume(ch, sink)
	return c, nil
}

// Logs returns the retained diagnostic lines, oldest first.
func (c *Consumer) Logs() []string { return c.logs.Lines() }

// Close tears the subscription down and waits for the consume loop to drain.
// Idempotent; events arriving after Close are dropped by the stream.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
}

// consume decodes and dispatches envelopes until the subscription closes.
// Malformed payloads are logged and skipped; they never stop the loop.
func (c *Consumer) consume(ch <-chan events.Envelope, sink Sink) {
	defer close(c.done)

	for env := range ch {
		if env.CorrelationID != c.correlationID {
			continue
		}
		switch env.Type {
		case events.TypeProgress:
			var ev domain.ProgressEvent
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				c.logger.Warn("dropping malformed progress event",
					"correlation_id", c.correlationID, "error", err)
				continue
			}
			sink.ApplyProgress(ev)

		case events.TypeResult:
			var ev domain.ResultEvent
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				c.logger.Warn("dropping malformed result event",
					"correlation_id", c.correlationID, "error", err)
				continue
			}
			sink.ApplyResult(ev)

		case events.TypeLog:
			var line string
			if err := json.Unmarshal(env.Payload, &line); err != nil {
				// Raw senders may publish plain text rather than a JSON string.
				line = string(env.Payload)
			}
			c.logs.Append(line)

		default:
			c.logger.Warn("dropping event of unknown type",
				"correlation_id", c.correlationID, "type", env.Type)
		}
	}
}
