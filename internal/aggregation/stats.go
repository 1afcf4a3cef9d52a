// Package aggregation computes statistics and export formats from a
// session's result set. Every function here is pure and deterministic:
// statistics are always recomputed from the authoritative result list,
// never maintained as incremental counters.
package aggregation

import (
	"sort"
	"time"

	"github.com/mkritz/bulkeval/internal/domain"
)

// ComputeStats derives aggregate statistics from a result set. Counts and
// means come only from the results slice; the elapsed session duration is
// supplied by the caller. An empty result set yields zero values, never NaN.
func ComputeStats(results []domain.EvaluationResult, elapsed time.Duration) domain.AggregateStats {
	stats := domain.AggregateStats{
		Total:         len(results),
		TotalTimeSecs: elapsed.Seconds(),
	}

	var latencySum int64
	for _, r := range results {
		if r.Status == domain.ResultSuccess {
			stats.Successful++
		} else {
			stats.Failed++
		}
		latencySum += r.ResponseTimeMs
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
		stats.AvgLatencyMs = float64(latencySum) / float64(stats.Total)
	}
	return stats
}

// SortResults orders results by question index ascending. The input slice is
// not modified; a sorted copy is returned.
func SortResults(results []domain.EvaluationResult) []domain.EvaluationResult {
	out := make([]domain.EvaluationResult, len(results))
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out
}
