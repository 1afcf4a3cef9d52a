package domain

// ProgressEvent reports overall batch completion while a run executes.
// Applied to the session only while it is Running.
type ProgressEvent struct {
	// ProgressPercent is the remote evaluator's overall completion (0-100).
	ProgressPercent float64 `json:"progress_percent"`

	// CurrentQuestionIndex is the highest question index started so far.
	CurrentQuestionIndex int `json:"current_question_index"`

	// EstimatedRemainingSecs is the remote side's remaining-time estimate.
	// Negative values mean "no estimate" and leave the session untouched.
	EstimatedRemainingSecs float64 `json:"estimated_time_remaining_seconds"`
}

// ResultEvent reports one question's outcome while a run executes. Events may
// arrive out of index order and may repeat for the same index; consumers key
// by QuestionIndex and treat repeats as idempotent replacement.
type ResultEvent struct {
	// ID identifies the event instance on the wire.
	ID string `json:"id"`

	// QuestionIndex is the zero-based dataset position this result is for.
	QuestionIndex int `json:"question_index"`

	// Question echoes the evaluated prompt text.
	Question string `json:"question"`

	// Response is the agent's answer, empty on error.
	Response string `json:"response,omitempty"`

	// ResponseTimeMs is the per-question latency in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// Status is success or error for this question.
	Status ResultStatus `json:"status"`

	// Error carries the question-specific failure text when Status is error.
	Error string `json:"error,omitempty"`
}

// Result converts the event into the EvaluationResult it produces or
// overwrites, attaching the expected answer from the submitted dataset when
// the index is in range.
func (e ResultEvent) Result(dataset *ParsedDataset) EvaluationResult {
	res := EvaluationResult{
		QuestionIndex:  e.QuestionIndex,
		Question:       e.Question,
		Response:       e.Response,
		ResponseTimeMs: e.ResponseTimeMs,
		Status:         e.Status,
		Error:          e.Error,
	}
	if !IsValidResultStatus(res.Status) {
		res.Status = ResultError
	}
	if dataset != nil && e.QuestionIndex >= 0 && e.QuestionIndex < len(dataset.Rows) {
		row := dataset.Rows[e.QuestionIndex]
		if res.Question == "" {
			res.Question = row.Question
		}
		res.ExpectedAnswer = row.ExpectedAnswer
	}
	return res
}
