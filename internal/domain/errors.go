package domain

import "errors"

// ErrInvalidInput indicates that a dataset or configuration failed validation
// before submission (missing question column, zero valid rows, row cap exceeded).
var ErrInvalidInput = errors.New("invalid input")

// ErrParseFailure indicates that CSV text caused an internal parse fault.
// Parse faults are always caught and converted; they never propagate as panics.
var ErrParseFailure = errors.New("csv parse failure")

// ErrSessionConflict indicates a start was attempted while a session is
// already running for this orchestrator or correlation id.
var ErrSessionConflict = errors.New("session already running")

// ErrRemoteFailure indicates the evaluation call itself failed
// (network or service fault). Individual question failures are not
// remote failures; they are recorded as error results.
var ErrRemoteFailure = errors.New("evaluation service failure")

// ErrInvalidTransition indicates a session operation that is not legal
// from the session's current status.
var ErrInvalidTransition = errors.New("invalid session transition")
