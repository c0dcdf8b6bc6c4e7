package aggregator

// RunOutcome is one (variant, task) pass/fail observation drawn from one
// run of a task set. Multi-run pass@k input is a flat slice of these,
// sourced either from in-memory results across several orchestrator runs
// in the same process, or from on-disk result files whose task-set hash
// (internal/taskhash) matches the current run.
type RunOutcome struct {
	VariantID string
	TaskID    string
	Passed    bool
}

// PassAtKResult is the aggregator's pass@k output: the mean pass@k per
// variant across every task it was run against, plus a consistency score.
type PassAtKResult struct {
	PerVariant  map[string]float64
	Consistency float64
}

type pairKey struct{ variantID, taskID string }

// ComputePassAtK implements the multi-run pass@k formula: for each
// (variant, task) pair with n runs of which c passed,
// pass@k = 1 − C(n−c, k) / C(n, k) for k ≤ n, else 1 if c > 0 (else 0).
// The per-variant value is the mean across that variant's tasks;
// consistency is the fraction of (variant, task) pairs where every run
// agreed (all passed or all failed).
func ComputePassAtK(outcomes []RunOutcome, k int) PassAtKResult {
	counts := make(map[pairKey]*struct{ n, c int })
	var order []pairKey
	for _, o := range outcomes {
		key := pairKey{o.VariantID, o.TaskID}
		cnt, ok := counts[key]
		if !ok {
			cnt = &struct{ n, c int }{}
			counts[key] = cnt
			order = append(order, key)
		}
		cnt.n++
		if o.Passed {
			cnt.c++
		}
	}

	sums := make(map[string]float64)
	taskCounts := make(map[string]int)
	var variantOrder []string
	agree := 0

	for _, key := range order {
		cnt := counts[key]
		p := passAtKForPair(cnt.n, cnt.c, k)
		if _, ok := sums[key.variantID]; !ok {
			variantOrder = append(variantOrder, key.variantID)
		}
		sums[key.variantID] += p
		taskCounts[key.variantID]++
		if cnt.c == 0 || cnt.c == cnt.n {
			agree++
		}
	}

	perVariant := make(map[string]float64, len(variantOrder))
	for _, v := range variantOrder {
		perVariant[v] = round4(sums[v] / float64(taskCounts[v]))
	}

	result := PassAtKResult{PerVariant: perVariant}
	if len(order) > 0 {
		result.Consistency = round4(float64(agree) / float64(len(order)))
	}
	return result
}

func passAtKForPair(n, c, k int) float64 {
	if k > n {
		if c > 0 {
			return 1
		}
		return 0
	}
	if c == 0 {
		return 0
	}
	den := choose(n, k)
	if den == 0 {
		return 1
	}
	return 1 - choose(n-c, k)/den
}

// choose computes the binomial coefficient C(n, k) as a float64; n and k
// are small in practice (bounded by the number of runs configured for a
// multi-run comparison), so the iterative product never risks overflow.
func choose(n, k int) float64 {
	if k < 0 || k > n || n < 0 {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	if k > n-k {
		k = n - k
	}
	result := 1.0
	for i := 0; i < k; i++ {
		result *= float64(n-i) / float64(i+1)
	}
	return result
}
