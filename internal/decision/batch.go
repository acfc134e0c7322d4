package decision

import "fmt"

// BatchResult folds per-PR evaluations and consolidates cross-PR
// recommendations. No PR's result depends on another's.
type BatchResult struct {
	Evaluations     []Evaluation      `json:"evaluations"`
	ByDecision      map[Verdict][]int `json:"byDecision"`
	Recommendations []Action          `json:"recommendations,omitempty"`
}

// EvaluateBatch evaluates each PR independently and groups the outcomes.
func (m *Matrix) EvaluateBatch(facts []Facts) BatchResult {
	evs := make([]Evaluation, 0, len(facts))
	for _, f := range facts {
		evs = append(evs, m.Evaluate(f))
	}
	return Consolidate(evs)
}

// Consolidate groups already-computed evaluations and derives the
// cross-PR recommendations.
func Consolidate(evs []Evaluation) BatchResult {
	res := BatchResult{ByDecision: map[Verdict][]int{}}
	for _, ev := range evs {
		res.Evaluations = append(res.Evaluations, ev)
		res.ByDecision[ev.Decision] = append(res.ByDecision[ev.Decision], ev.PR)
	}

	if prs := res.ByDecision[VerdictAutoMerge]; len(prs) > 0 {
		res.Recommendations = append(res.Recommendations, Action{
			Type:        "batch_merge",
			Priority:    "high",
			Description: fmt.Sprintf("merge %d PR(s) that met their auto-merge threshold: %v", len(prs), prs),
		})
	}
	if prs := res.ByDecision[VerdictBlocked]; len(prs) > 0 {
		res.Recommendations = append(res.Recommendations, Action{
			Type:        "fix_blockers",
			Priority:    "critical",
			Description: fmt.Sprintf("resolve blocking factors on %d PR(s): %v", len(prs), prs),
		})
	}
	if prs := res.ByDecision[VerdictReadyForMerge]; len(prs) > 0 {
		res.Recommendations = append(res.Recommendations, Action{
			Type:        "quick_review",
			Priority:    "medium",
			Description: fmt.Sprintf("%d PR(s) are one short review from merge: %v", len(prs), prs),
		})
	}
	return res
}
