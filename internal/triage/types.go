package triage

import (
	"fmt"
	"time"

	"prtriage/internal/decision"
)

// Mode selects whether mutating actions hit the API or are simulated.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeLive   Mode = "live"
)

// Outcome of processing one PR within a phase.
const (
	OutcomeMerged    = "merged"
	OutcomeCommented = "commented"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// PRResult records what happened to one PR.
type PRResult struct {
	Number     int              `json:"number"`
	Title      string           `json:"title,omitempty"`
	Type       decision.PRType  `json:"type,omitempty"`
	Decision   decision.Verdict `json:"decision,omitempty"`
	Confidence float64          `json:"confidence"`
	Outcome    string           `json:"outcome"`
	Error      string           `json:"error,omitempty"`
}

// PhaseResult aggregates one orchestration phase.
type PhaseResult struct {
	Name      string     `json:"name"`
	Processed int        `json:"processed"`
	Merged    int        `json:"merged"`
	Commented int        `json:"commented"`
	Skipped   int        `json:"skipped"`
	Errors    int        `json:"errors"`
	Results   []PRResult `json:"results,omitempty"`
}

func (p *PhaseResult) record(r PRResult) {
	p.Processed++
	switch r.Outcome {
	case OutcomeMerged:
		p.Merged++
	case OutcomeCommented:
		p.Commented++
	case OutcomeSkipped:
		p.Skipped++
	case OutcomeError:
		p.Errors++
	}
	p.Results = append(p.Results, r)
}

// Summary merges both phases' counters.
type Summary struct {
	Processed   int     `json:"processed"`
	Merged      int     `json:"merged"`
	Commented   int     `json:"commented"`
	Skipped     int     `json:"skipped"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"successRate"`
}

// Recommendation is a prioritized run-level follow-up.
type Recommendation struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	PRs         []int  `json:"prs,omitempty"`
}

// Run is the full result of one orchestration invocation. It is built
// fresh each run; nothing in this package persists state across runs.
type Run struct {
	StartedAt       time.Time             `json:"startedAt"`
	Mode            Mode                  `json:"mode"`
	Repository      string                `json:"repository"`
	AutoReview      PhaseResult           `json:"autoReview"`
	Cleanup         PhaseResult           `json:"cleanup"`
	Summary         Summary               `json:"summary"`
	Recommendations []Recommendation      `json:"recommendations,omitempty"`
	Evaluations     []decision.Evaluation `json:"evaluations,omitempty"`
	Batch           decision.BatchResult  `json:"batch"`
}

// HasBlockingIssues reports whether the run found blocked PRs or hit
// errors; the CLI exits non-zero in that case.
func (r *Run) HasBlockingIssues() bool {
	return r.Summary.Errors > 0 || len(r.Batch.ByDecision[decision.VerdictBlocked]) > 0
}

// OrchestrationError wraps an unexpected failure in one operation so
// reporting can distinguish error categories.
type OrchestrationError struct {
	Op  string
	PR  int
	Err error
}

func (e *OrchestrationError) Error() string {
	if e.PR != 0 {
		return fmt.Sprintf("orchestration: %s on PR #%d: %v", e.Op, e.PR, e.Err)
	}
	return fmt.Sprintf("orchestration: %s: %v", e.Op, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }
