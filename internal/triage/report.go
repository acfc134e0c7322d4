package triage

import (
	"fmt"
	"strings"
)

// MarkdownReport renders a run as a human-readable report.
func MarkdownReport(run *Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# PR Triage Report\n\n")
	fmt.Fprintf(&b, "- Repository: %s\n", run.Repository)
	fmt.Fprintf(&b, "- Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Mode: %s\n\n", run.Mode)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Processed | Merged | Commented | Skipped | Errors | Success rate |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %.1f%% |\n\n",
		run.Summary.Processed, run.Summary.Merged, run.Summary.Commented,
		run.Summary.Skipped, run.Summary.Errors, run.Summary.SuccessRate)

	for _, phase := range []PhaseResult{run.AutoReview, run.Cleanup} {
		if phase.Processed == 0 {
			continue
		}
		fmt.Fprintf(&b, "## Phase: %s\n\n", phase.Name)
		fmt.Fprintf(&b, "| PR | Type | Decision | Confidence | Outcome |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|\n")
		for _, r := range phase.Results {
			outcome := r.Outcome
			if r.Error != "" {
				outcome = outcome + " (" + r.Error + ")"
			}
			fmt.Fprintf(&b, "| #%d | %s | %s | %.1f%% | %s |\n",
				r.Number, r.Type, r.Decision, r.Confidence, outcome)
		}
		b.WriteString("\n")
	}

	var errors []PRResult
	for _, phase := range []PhaseResult{run.AutoReview, run.Cleanup} {
		for _, r := range phase.Results {
			if r.Outcome == OutcomeError {
				errors = append(errors, r)
			}
		}
	}
	if len(errors) > 0 {
		fmt.Fprintf(&b, "## Errors\n\n")
		for _, r := range errors {
			fmt.Fprintf(&b, "- PR #%d: %s\n", r.Number, r.Error)
		}
		b.WriteString("\n")
	}

	if len(run.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")
		for _, rec := range run.Recommendations {
			line := fmt.Sprintf("- **%s** [%s]: %s", rec.Type, rec.Priority, rec.Description)
			if len(rec.PRs) > 0 {
				line += fmt.Sprintf(" %v", rec.PRs)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if len(run.Batch.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Batch actions\n\n")
		for _, a := range run.Batch.Recommendations {
			fmt.Fprintf(&b, "- **%s** [%s]: %s\n", a.Type, a.Priority, a.Description)
		}
	}

	return b.String()
}
