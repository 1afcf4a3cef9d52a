package aggregation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkritz/bulkeval/internal/domain"
)

// csvHeader is the fixed export header row. Column order is part of the
// export contract; downstream tooling indexes by position.
var csvHeader = []string{
	"Question Index",
	"Question",
	"Agent Response",
	"Status",
	"Response Time (ms)",
	"Expected Answer",
}

// ExportMetadata labels a JSON export with the run it came from.
type ExportMetadata struct {
	// ExportDate records when the export was produced.
	ExportDate time.Time `json:"export_date"`

	// AgentName labels the agent the batch ran against.
	AgentName string `json:"agent_name"`

	// Stats embeds the aggregate statistics for the exported result set.
	domain.AggregateStats
}

// ExportCSV renders results as CSV: one row per result with a 1-based index,
// string fields double-quoted with internal quotes doubled. Results are
// emitted in question-index order regardless of input ordering. The output is
// deterministic for a given result set.
func ExportCSV(results []domain.EvaluationResult) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))
	b.WriteByte('\n')

	for i, r := range SortResults(results) {
		fields := []string{
			fmt.Sprintf("%d", i+1),
			quote(r.Question),
			quote(r.Response),
			quote(string(r.Status)),
			fmt.Sprintf("%d", r.ResponseTimeMs),
			quote(r.ExpectedAnswer),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// jsonExport is the shape of a JSON export document.
type jsonExport struct {
	Metadata ExportMetadata            `json:"metadata"`
	Results  []domain.EvaluationResult `json:"results"`
}

// ExportJSON renders results as a pretty-printed JSON document of the form
// {metadata: {...}, results: [...]}. Results are emitted in question-index
// order.
func ExportJSON(meta ExportMetadata, results []domain.EvaluationResult) ([]byte, error) {
	doc := jsonExport{
		Metadata: meta,
		Results:  SortResults(results),
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return out, nil
}

// quote wraps a string field in double quotes, doubling internal quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
