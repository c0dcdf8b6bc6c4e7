package aggregator

import (
	"math"
	"sort"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// PerModelStats accumulates per-variant aggregate statistics across every
// result in a run. Order of the returned slice follows
// each variant's first appearance in results.
func PerModelStats(results []*model.TaskExecutionResult) []*model.ModelStats {
	byVariant := make(map[string]*model.ModelStats)
	scoreSum := make(map[string]float64)
	attemptSum := make(map[string]int)
	taskCount := make(map[string]int)
	var order []string

	for _, r := range results {
		v := r.Context.Variant.VariantID
		stats, ok := byVariant[v]
		if !ok {
			stats = &model.ModelStats{VariantID: v, PassedOnAttempt: make(map[int]int)}
			byVariant[v] = stats
			order = append(order, v)
		}

		if r.Success {
			stats.TasksPassed++
			stats.PassedOnAttempt[r.PassedAttemptNumber]++
		} else {
			stats.TasksFailed++
		}

		stats.TotalTokens.PromptTokens += r.TotalTokens.PromptTokens
		stats.TotalTokens.CompletionTokens += r.TotalTokens.CompletionTokens
		stats.TotalTokens.EstimatedCost += r.TotalTokens.EstimatedCost
		stats.TotalCost += r.TotalTokens.EstimatedCost

		scoreSum[v] += r.FinalScore
		attemptSum[v] += len(r.Attempts)
		taskCount[v]++
	}

	out := make([]*model.ModelStats, 0, len(order))
	for _, v := range order {
		stats := byVariant[v]
		n := taskCount[v]
		if n > 0 {
			stats.AvgScore = round1(scoreSum[v] / float64(n))
			stats.AvgAttempts = round1(float64(attemptSum[v]) / float64(n))
		}
		stats.TotalCost = round4(stats.TotalCost)
		stats.TotalTokens.EstimatedCost = round4(stats.TotalTokens.EstimatedCost)
		out = append(out, stats)
	}
	return out
}

// BuildComparison joins the per-variant results for one task into a
// TaskComparison, selecting a winner by the tiebreak chain:
// highest score, then earliest pass, then fewest attempts, then lowest
// token count. order fixes the input order passingModels/failingModels
// must preserve — TaskComparison.Results is a map and cannot carry it.
func BuildComparison(taskID string, order []string, results map[string]*model.TaskExecutionResult) *model.TaskComparison {
	comp := &model.TaskComparison{TaskID: taskID, Results: results}

	for _, v := range order {
		r := results[v]
		if r != nil && r.Success {
			comp.PassingModels = append(comp.PassingModels, v)
		} else {
			comp.FailingModels = append(comp.FailingModels, v)
		}
	}

	ranked := make([]string, len(comp.PassingModels))
	copy(ranked, comp.PassingModels)
	sort.SliceStable(ranked, func(i, j int) bool {
		return resultLess(results[ranked[i]], results[ranked[j]])
	})
	comp.RankingVector = ranked

	if len(ranked) > 0 {
		best := ranked[0]
		tiedWithBest := 1
		for _, v := range ranked[1:] {
			if resultLess(results[best], results[v]) || resultLess(results[v], results[best]) {
				break
			}
			tiedWithBest++
		}
		if tiedWithBest == 1 {
			comp.Winner = best
		}
	}

	return comp
}

// resultLess orders two passing results best-first by the §3 tiebreak chain.
func resultLess(a, b *model.TaskExecutionResult) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.PassedAttemptNumber != b.PassedAttemptNumber {
		return a.PassedAttemptNumber < b.PassedAttemptNumber
	}
	if len(a.Attempts) != len(b.Attempts) {
		return len(a.Attempts) < len(b.Attempts)
	}
	return tokenTotal(a) < tokenTotal(b)
}

func tokenTotal(r *model.TaskExecutionResult) int {
	return r.TotalTokens.PromptTokens + r.TotalTokens.CompletionTokens
}

// PerTaskStats summarizes one task's comparison: how many variants passed,
// and the best/average score across every variant that attempted it.
func PerTaskStats(comp *model.TaskComparison) *model.TaskStats {
	stats := &model.TaskStats{TaskID: comp.TaskID, VariantsPassed: len(comp.PassingModels)}
	var best, sum float64
	count := 0
	for _, r := range comp.Results {
		if r.FinalScore > best {
			best = r.FinalScore
		}
		sum += r.FinalScore
		count++
	}
	if count > 0 {
		stats.BestScore = round1(best)
		stats.AvgScore = round1(sum / float64(count))
	}
	return stats
}

// GlobalStats summarizes an entire run's result set.
func GlobalStats(results []*model.TaskExecutionResult) *model.GlobalStats {
	g := &model.GlobalStats{}
	if len(results) == 0 {
		return g
	}

	var passed int
	for _, r := range results {
		if r.Success {
			passed++
		}
		g.TotalTokens.PromptTokens += r.TotalTokens.PromptTokens
		g.TotalTokens.CompletionTokens += r.TotalTokens.CompletionTokens
		g.TotalCost += r.TotalTokens.EstimatedCost
		g.TotalDurations.LLM += r.TotalDuration.LLM
		g.TotalDurations.Compile += r.TotalDuration.Compile
		g.TotalDurations.Test += r.TotalDuration.Test
	}

	g.TotalCost = round4(g.TotalCost)
	g.OverallPassRate = round1(100 * float64(passed) / float64(len(results)))
	return g
}
