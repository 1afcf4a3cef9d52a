// Package domain provides the core types and business logic for bulk agent
// evaluation runs. It defines parsed datasets, session state transitions,
// per-question results, and aggregate statistics. The types are designed so
// that session state is an explicit value transformed by pure functions and
// all statistics remain recomputable from the authoritative result list.
package domain

import (
	"maps"
	"strings"
)

// MaxDatasetRows caps the number of data rows accepted from an uploaded CSV.
// Lines beyond the cap are not parsed; the dataset is marked invalid with a
// truncation error so the caller can surface it.
const MaxDatasetRows = 1000

// QuestionRow is a single validated question from an uploaded dataset.
// Known columns map to named fields; any remaining columns are preserved
// in Extra keyed by their header name.
type QuestionRow struct {
	// Question is the prompt text sent to the agent. Always trimmed and
	// non-empty; rows that would violate this are dropped during parsing.
	Question string `json:"question"`

	// ExpectedAnswer optionally holds the reference answer for comparison.
	ExpectedAnswer string `json:"expected_answer,omitempty"`

	// Context optionally holds per-question context for the agent.
	Context string `json:"context,omitempty"`

	// Category optionally labels the question for downstream grouping.
	Category string `json:"category,omitempty"`

	// Extra preserves unrecognized columns by header name.
	Extra map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy of the row. The Extra map is copied to
// prevent aliasing between dataset snapshots.
func (q QuestionRow) Clone() QuestionRow {
	out := q
	out.Extra = cloneStringMap(q.Extra)
	return out
}

// ParsedDataset is the structured, validated form of an uploaded CSV.
// Invariant: Valid is true exactly when Errors is empty.
type ParsedDataset struct {
	// Headers is the ordered header row as parsed.
	Headers []string `json:"headers"`

	// Rows holds the surviving question rows in file order, capped at
	// MaxDatasetRows.
	Rows []QuestionRow `json:"rows"`

	// QuestionColumn is the detected header supplying Question values.
	// Empty when no question column was found.
	QuestionColumn string `json:"question_column"`

	// Valid reports whether the dataset can be submitted.
	Valid bool `json:"is_valid"`

	// Errors lists every validation failure in full. Never truncated so the
	// input can be corrected.
	Errors []string `json:"errors"`
}

// AddError records a validation failure and marks the dataset invalid.
func (d *ParsedDataset) AddError(msg string) {
	d.Errors = append(d.Errors, msg)
	d.Valid = false
}

// Len returns the number of surviving question rows.
func (d *ParsedDataset) Len() int { return len(d.Rows) }

// IsQuestionHeader reports whether a header name identifies the question
// column: its lowercase form contains "question", or equals "q" or "query".
func IsQuestionHeader(header string) bool {
	h := strings.ToLower(strings.TrimSpace(header))
	return strings.Contains(h, "question") || h == "q" || h == "query"
}

// cloneStringMap creates a deep copy of a string map to prevent aliasing.
// Returns nil for nil input to maintain consistency.
func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	maps.Copy(result, m)
	return result
}
