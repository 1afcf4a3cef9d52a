package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default submission parameters.
const (
	// DefaultBatchSize is the parallelism hint sent to the remote evaluator
	// when the caller does not specify one.
	DefaultBatchSize = 10

	// DefaultPerQuestionBudget bounds the awaited submission: the overall
	// submit deadline is Total questions times this budget.
	DefaultPerQuestionBudget = 30 * time.Second
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// BatchConfig carries everything the remote evaluation service needs to run
// one batch, plus the correlation id binding the run to its event stream.
type BatchConfig struct {
	// AgentCode is the agent definition under test.
	AgentCode string `json:"agent_code" validate:"required"`

	// AgentName labels the agent in exports and logs.
	AgentName string `json:"agent_name" validate:"required"`

	// AgentDescription optionally describes the agent for the evaluator.
	AgentDescription string `json:"agent_description,omitempty"`

	// Context optionally supplies shared context for every question.
	Context string `json:"context,omitempty"`

	// CorrelationID binds this run to its push-event stream. Must be minted
	// fresh per run; reuse would leak a prior run's events into this one.
	CorrelationID string `json:"correlation_id" validate:"required"`

	// BatchSize hints the remote side's internal per-call parallelism.
	// The engine issues one submission call regardless of this value.
	BatchSize int `json:"batch_size" validate:"required,min=1,max=100"`
}

// Validate checks the batch configuration. Returns nil if valid, or an
// ErrInvalidInput-wrapped error describing the violation.
func (c *BatchConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
