package dataset

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkritz/bulkeval/internal/domain"
)

// TestParseValidDataset verifies the happy path: a detectable question
// column and well-formed rows produce a valid dataset with all recognized
// columns mapped.
func TestParseValidDataset(t *testing.T) {
	raw := "question,expected_answer\nWhat is 2+2?,4\nWhat is the capital of France?,Paris\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "dataset should be valid, errors: %v", ds.Errors)
	assert.Empty(t, ds.Errors)
	assert.Equal(t, "question", ds.QuestionColumn)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "What is 2+2?", ds.Rows[0].Question)
	assert.Equal(t, "4", ds.Rows[0].ExpectedAnswer)
	assert.Equal(t, "What is the capital of France?", ds.Rows[1].Question)
	assert.Equal(t, "Paris", ds.Rows[1].ExpectedAnswer)
}

// TestParseColumnMapping verifies the positional mapping priority:
// question column first, then expected/answer, context, category, and
// everything else into the Extra map.
func TestParseColumnMapping(t *testing.T) {
	raw := "id,user_query,answer,context,category,difficulty\n" +
		"7,How tall is Everest?,8849 m,geography facts,mountains,easy\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "errors: %v", ds.Errors)
	assert.Equal(t, "user_query", ds.QuestionColumn)
	require.Len(t, ds.Rows, 1)

	row := ds.Rows[0]
	assert.Equal(t, "How tall is Everest?", row.Question)
	assert.Equal(t, "8849 m", row.ExpectedAnswer)
	assert.Equal(t, "geography facts", row.Context)
	assert.Equal(t, "mountains", row.Category)
	assert.Equal(t, map[string]string{"id": "7", "difficulty": "easy"}, row.Extra)
}

// TestParseQuestionColumnDetection covers the detection rules: lowercase
// contains "question", or equals "q" or "query".
func TestParseQuestionColumnDetection(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "plain question", header: "question", want: "question"},
		{name: "contains question", header: "Test Question", want: "Test Question"},
		{name: "uppercase", header: "QUESTION", want: "QUESTION"},
		{name: "bare q", header: "q", want: "q"},
		{name: "query", header: "Query", want: "Query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := Parse(tt.header + "\nsomething\n")
			assert.Equal(t, tt.want, ds.QuestionColumn)
		})
	}
}

// TestParseNoQuestionColumn verifies that a header row without any
// recognizable question column invalidates the dataset while still keeping
// the parsed rows for inspection.
func TestParseNoQuestionColumn(t *testing.T) {
	raw := "prompt,answer\nWhat is 2+2?,4\n"

	ds := Parse(raw)

	assert.False(t, ds.Valid)
	require.NotEmpty(t, ds.Errors)
	assert.Contains(t, ds.Errors[0], "no question column found")
	assert.Empty(t, ds.QuestionColumn)
	require.Len(t, ds.Rows, 1, "rows are still parsed for inspection")
	assert.Empty(t, ds.Rows[0].Question)
	assert.Equal(t, "4", ds.Rows[0].ExpectedAnswer)
}

// TestParseDegenerateInputs verifies that Parse never panics and that
// empty or header-only input yields an invalid dataset with a descriptive
// error.
func TestParseDegenerateInputs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		errPart string
	}{
		{name: "empty string", raw: "", errPart: "empty"},
		{name: "only blank lines", raw: "\n\n  \n\t\n", errPart: "empty"},
		{name: "header only", raw: "question,answer\n", errPart: "no data rows"},
		{name: "all rows blank question", raw: "question,answer\n,42\n  ,43\n", errPart: "no valid rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				ds := Parse(tt.raw)
				assert.False(t, ds.Valid)
				require.NotEmpty(t, ds.Errors)
				assert.Contains(t, strings.Join(ds.Errors, "\n"), tt.errPart)
			})
		})
	}
}

// TestParseRowCapTruncation verifies that more than the maximum number of
// data rows marks the dataset invalid with a truncation error and caps the
// parsed rows.
func TestParseRowCapTruncation(t *testing.T) {
	var b strings.Builder
	b.WriteString("question\n")
	for i := 0; i < domain.MaxDatasetRows+1; i++ {
		fmt.Fprintf(&b, "Question number %d\n", i)
	}

	ds := Parse(b.String())

	assert.False(t, ds.Valid)
	assert.Len(t, ds.Rows, domain.MaxDatasetRows)
	require.NotEmpty(t, ds.Errors)
	assert.Contains(t, ds.Errors[0], "truncated")
}

// TestParseBlankQuestionRowsDropped verifies rows with an empty question are
// silently dropped without invalidating the dataset.
func TestParseBlankQuestionRowsDropped(t *testing.T) {
	raw := "question,answer\nFirst?,1\n,skipped\nThird?,3\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "errors: %v", ds.Errors)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "First?", ds.Rows[0].Question)
	assert.Equal(t, "Third?", ds.Rows[1].Question)
}

// TestParseQuotedFields verifies surrounding quotes are stripped per field
// and doubled internal quotes collapse, on headers and values alike.
func TestParseQuotedFields(t *testing.T) {
	raw := "\"question\",\"answer\"\n\"Say \"\"hi\"\"\",\"greeting\"\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "errors: %v", ds.Errors)
	assert.Equal(t, []string{"question", "answer"}, ds.Headers)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, `Say "hi"`, ds.Rows[0].Question)
	assert.Equal(t, "greeting", ds.Rows[0].ExpectedAnswer)
}

// TestParseCRLFInput verifies Windows line endings parse cleanly.
func TestParseCRLFInput(t *testing.T) {
	raw := "question,answer\r\nWhat is 2+2?,4\r\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "errors: %v", ds.Errors)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "What is 2+2?", ds.Rows[0].Question)
}

// TestParseShortRow verifies rows with fewer fields than headers map what
// they have and leave the rest unset.
func TestParseShortRow(t *testing.T) {
	raw := "question,answer,category\nLonely question\n"

	ds := Parse(raw)

	require.True(t, ds.Valid, "errors: %v", ds.Errors)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "Lonely question", ds.Rows[0].Question)
	assert.Empty(t, ds.Rows[0].ExpectedAnswer)
	assert.Empty(t, ds.Rows[0].Category)
}
