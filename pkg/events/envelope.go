// Package events defines the push-event-channel contract between the
// orchestration engine and the remote evaluation service. It provides the
// Envelope type wrapping streamed messages with consistent metadata, the
// Stream and Publisher interfaces, and an in-memory Bus implementation for
// embedding callers and tests.
package events

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of streamed message for routing.
type MessageType string

const (
	// TypeProgress carries a domain.ProgressEvent payload reporting overall
	// batch completion.
	TypeProgress MessageType = "progress"

	// TypeResult carries a domain.ResultEvent payload reporting one
	// question's outcome.
	TypeResult MessageType = "result"

	// TypeLog carries a raw diagnostic log line.
	TypeLog MessageType = "log"
)

// Envelope wraps streamed messages with consistent metadata so consumers can
// attribute, route, and decode them without knowing payload schemas upfront.
//
// Delivery order across distinct question indices is NOT guaranteed: the
// remote side may process questions concurrently or out of order. Consumers
// must key result payloads by question index and treat repeats for the same
// index as idempotent replacement.
type Envelope struct {
	// Type identifies the payload for routing: progress, result, or log.
	Type MessageType `json:"type"`

	// CorrelationID binds the message to exactly one evaluation session.
	// Messages for an unknown or superseded id are dropped.
	CorrelationID string `json:"correlation_id"`

	// Timestamp records when the message was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Payload contains the type-specific data as JSON.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals a payload into an envelope of the given type.
func NewEnvelope(typ MessageType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:          typ,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Payload:       raw,
	}, nil
}

// Stream is the subscriber side of the push event channel. Implementations
// include the in-memory Bus and the WebSocket transport adapter.
type Stream interface {
	// Subscribe registers interest in all messages for one correlation id.
	// The returned channel is closed when the subscription is cancelled via
	// the returned func or the stream shuts down. Exactly one subscription
	// per correlation id per session lifetime is expected.
	Subscribe(correlationID string) (<-chan Envelope, func(), error)
}

// Publisher is the emitting side of the push event channel. The remote
// evaluation service (or a test double standing in for it) publishes here.
type Publisher interface {
	// Publish delivers a message to the subscriber for its correlation id,
	// if any. Delivery is best-effort: messages for absent subscribers are
	// dropped rather than queued so a slow consumer cannot stall the
	// publishing side.
	Publish(envelope Envelope) error
}
