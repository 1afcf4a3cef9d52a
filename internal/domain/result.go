package domain

// ResultStatus represents the outcome of evaluating a single question.
// Using typed constants provides compile-time safety and enables
// exhaustive switch statements when folding results into statistics.
type ResultStatus string

const (
	// ResultSuccess indicates the agent produced a response for the question.
	ResultSuccess ResultStatus = "success"

	// ResultError indicates the question's evaluation failed. The failure is
	// recorded on the result and does not abort the batch.
	ResultError ResultStatus = "error"
)

// IsValidResultStatus reports whether the status is a recognized outcome.
func IsValidResultStatus(status ResultStatus) bool {
	return status == ResultSuccess || status == ResultError
}

// EvaluationResult records the outcome of one question within a session.
// Results are keyed by QuestionIndex; a later result for the same index
// replaces the prior record (idempotent overwrite, never accumulation).
type EvaluationResult struct {
	// QuestionIndex is the zero-based position of the question in the
	// submitted dataset. Unique per session.
	QuestionIndex int `json:"question_index"`

	// Question is the prompt text that was evaluated.
	Question string `json:"question"`

	// Response is the agent's answer, empty on error.
	Response string `json:"response,omitempty"`

	// ResponseTimeMs measures the agent's response latency in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// Status indicates success or error for this question.
	Status ResultStatus `json:"status"`

	// Error carries the question-specific failure text when Status is error.
	// Distinct from a session-level failure message.
	Error string `json:"error,omitempty"`

	// ExpectedAnswer echoes the reference answer from the dataset, if any.
	ExpectedAnswer string `json:"expected_answer,omitempty"`
}

// EvaluationSummary is the terminal, awaited response from the evaluation
// service: the complete result set plus the service's own aggregate counts.
type EvaluationSummary struct {
	// Total is the number of questions the service processed.
	Total int `json:"total"`

	// Successful counts questions that produced a response.
	Successful int `json:"successful"`

	// Failed counts questions whose evaluation failed.
	Failed int `json:"failed"`

	// AvgLatencyMs is the mean per-question response time in milliseconds.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// TotalTimeSecs is the wall-clock duration of the batch in seconds.
	TotalTimeSecs float64 `json:"total_time_s"`

	// Results holds the full per-question result set.
	Results []EvaluationResult `json:"results"`
}

// AggregateStats are derived statistics over a result set. They are never
// independently mutated; always recompute them from the authoritative result
// list to avoid counter desync.
type AggregateStats struct {
	// Total is the number of recorded results.
	Total int `json:"total"`

	// Successful counts results with status success.
	Successful int `json:"successful"`

	// Failed counts results with status error.
	Failed int `json:"failed"`

	// SuccessRate is Successful/Total as a percentage, 0 when Total is 0.
	SuccessRate float64 `json:"success_rate"`

	// AvgLatencyMs is the mean response time, 0 when no results exist.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// TotalTimeSecs is the elapsed wall-clock time since the session started.
	TotalTimeSecs float64 `json:"total_time_s"`
}
