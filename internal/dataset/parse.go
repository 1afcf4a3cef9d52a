// Package dataset parses raw CSV text into a validated question set.
// Parsing is deliberately forgiving: it collects every problem into the
// dataset's error list instead of failing fast, so callers can show the
// complete diagnosis and the input can be corrected in one pass.
//
// Fields are split on commas without RFC 4180 quote handling; surrounding
// quotes are stripped per field but an embedded delimiter inside quotes is
// not supported.
package dataset

import (
	"fmt"
	"strings"

	"github.com/mkritz/bulkeval/internal/domain"
)

// Validation error messages surfaced on the parsed dataset.
const (
	errNoQuestionColumn = "no question column found: expected a header containing \"question\", or named \"q\" or \"query\""
	errNoValidRows      = "no valid rows: every data row has an empty question"
	errEmptyInput       = "input is empty: a header row and at least one data row are required"
	errHeaderOnly       = "no data rows found after the header row"
	errParseFault       = "csv parse failure: malformed input"
)

// Parse converts raw CSV text into a ParsedDataset. It never panics and
// never returns an error: every failure mode is recorded on the dataset
// itself, and an unexpected internal fault is converted into a generic
// parse-failure entry by a deferred recover.
func Parse(raw string) (ds domain.ParsedDataset) {
	defer func() {
		if r := recover(); r != nil {
			ds = domain.ParsedDataset{}
			ds.AddError(errParseFault)
		}
	}()

	ds.Valid = true

	lines := nonBlankLines(raw)
	if len(lines) == 0 {
		ds.AddError(errEmptyInput)
		return ds
	}

	ds.Headers = splitFields(lines[0])
	ds.QuestionColumn = detectQuestionColumn(ds.Headers)
	if ds.QuestionColumn == "" {
		ds.AddError(errNoQuestionColumn)
	}

	dataLines := lines[1:]
	if len(dataLines) == 0 {
		ds.AddError(errHeaderOnly)
		return ds
	}
	if len(dataLines) > domain.MaxDatasetRows {
		ds.AddError(truncationError(len(dataLines)))
		dataLines = dataLines[:domain.MaxDatasetRows]
	}

	for _, line := range dataLines {
		row := mapRow(ds.Headers, ds.QuestionColumn, splitFields(line))
		// Without a question column every row lacks a question; keep them
		// anyway so the caller can inspect what was parsed.
		if row.Question == "" && ds.QuestionColumn != "" {
			continue // silently dropped, not an error
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		ds.AddError(errNoValidRows)
	}
	return ds
}

// nonBlankLines splits raw text on newlines and discards blank lines.
func nonBlankLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "" {
			continue
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	return lines
}

// splitFields performs the naive comma split, trimming whitespace and
// stripping one pair of surrounding quotes per field.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = stripQuotes(strings.TrimSpace(p))
	}
	return fields
}

// stripQuotes removes a single pair of surrounding double quotes and
// collapses doubled internal quotes, matching the export quoting rules.
func stripQuotes(field string) string {
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		field = field[1 : len(field)-1]
		field = strings.ReplaceAll(field, `""`, `"`)
	}
	return field
}

// detectQuestionColumn returns the header recognized as the question column,
// or "" when none matches. Exact names win over containing matches so a
// sibling header like "Question Index" cannot shadow a "Question" column.
func detectQuestionColumn(headers []string) string {
	for _, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "question", "q", "query":
			return h
		}
	}
	for _, h := range headers {
		if domain.IsQuestionHeader(h) {
			return h
		}
	}
	return ""
}

// mapRow maps field values positionally to headers. Recognition priority:
// the detected question column, then expected/answer, context, category;
// anything else lands in the row's Extra map.
func mapRow(headers []string, questionColumn string, fields []string) domain.QuestionRow {
	var row domain.QuestionRow
	for i, header := range headers {
		if i >= len(fields) {
			break
		}
		value := fields[i]
		lower := strings.ToLower(strings.TrimSpace(header))
		switch {
		case header == questionColumn && questionColumn != "":
			row.Question = strings.TrimSpace(value)
		case strings.Contains(lower, "expected") || strings.Contains(lower, "answer"):
			row.ExpectedAnswer = value
		case strings.Contains(lower, "context"):
			row.Context = value
		case strings.Contains(lower, "category"):
			row.Category = value
		default:
			if row.Extra == nil {
				row.Extra = make(map[string]string)
			}
			row.Extra[header] = value
		}
	}
	return row
}

// truncationError names the row cap and how many lines were supplied.
func truncationError(got int) string {
	return fmt.Sprintf("dataset truncated: %d data rows exceed the maximum of %d", got, domain.MaxDatasetRows)
}
