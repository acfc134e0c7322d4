package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"prtriage/internal/ci"
	"prtriage/internal/config"
	"prtriage/internal/decision"
	gh "prtriage/internal/github"
)

// Orchestrator sequences gateway fetch, CI aggregation, and matrix
// evaluation into an end-to-end triage run. It holds no state between
// runs: against unchanged remote state two runs produce the same
// decision set.
type Orchestrator struct {
	gw     gh.Gateway
	matrix *decision.Matrix
	policy config.Policy
	poll   PollPolicy
	log    *zap.Logger
	now    func() time.Time
}

func New(gw gh.Gateway, policy config.Policy, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		gw:     gw,
		matrix: decision.NewMatrix(policy.Thresholds),
		policy: policy,
		poll:   NewPollPolicy(policy.PollInterval(), policy.PollTimeout()),
		log:    log,
		now:    time.Now,
	}
}

// Run executes the full triage: auto-review phase over auto-merge
// candidates (dependabot and security PRs), then a cleanup phase over
// every open PR the first phase did not cover, then consolidated
// reporting. A failure on one PR is recorded and the batch continues.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) *Run {
	run := &Run{
		StartedAt:  o.now().UTC(),
		Mode:       mode,
		Repository: o.policy.Repository,
	}

	open := o.gw.ListOpenPullRequests(ctx)
	if o.policy.MaxPRsPerRun > 0 && len(open) > o.policy.MaxPRsPerRun {
		open = open[:o.policy.MaxPRsPerRun]
	}
	o.log.Info("triage run started",
		zap.String("repository", run.Repository),
		zap.String("mode", string(mode)),
		zap.Int("open_prs", len(open)))

	var autoNums, restNums []int
	for _, pr := range open {
		if pr.IsDependabot || pr.IsSecurity {
			autoNums = append(autoNums, pr.Number)
		} else {
			restNums = append(restNums, pr.Number)
		}
	}

	run.AutoReview = o.runPhase(ctx, run, "auto_review", autoNums, false)

	// Cleanup covers exactly the open PRs the first phase did not touch.
	covered := map[int]bool{}
	for _, r := range run.AutoReview.Results {
		covered[r.Number] = true
	}
	var cleanupNums []int
	for _, n := range restNums {
		if !covered[n] {
			cleanupNums = append(cleanupNums, n)
		}
	}
	run.Cleanup = o.runPhase(ctx, run, "cleanup", cleanupNums, true)

	run.Summary = mergeSummary(run.AutoReview, run.Cleanup)
	run.Batch = decision.Consolidate(run.Evaluations)
	run.Recommendations = o.recommend(run)

	o.log.Info("triage run finished",
		zap.Int("processed", run.Summary.Processed),
		zap.Int("merged", run.Summary.Merged),
		zap.Int("commented", run.Summary.Commented),
		zap.Int("errors", run.Summary.Errors),
		zap.Float64("success_rate", run.Summary.SuccessRate))
	return run
}

// EvaluatePR scores a single PR without acting on the verdict. Returns
// nil when the PR cannot be fetched.
func (o *Orchestrator) EvaluatePR(ctx context.Context, number int) *decision.Evaluation {
	rec := o.gw.GetPullRequest(ctx, number)
	if rec == nil {
		return nil
	}
	ev := o.matrix.Evaluate(o.buildFacts(ctx, rec))
	return &ev
}

func (o *Orchestrator) runPhase(ctx context.Context, run *Run, name string, numbers []int, cleanup bool) PhaseResult {
	phase := PhaseResult{Name: name}
	for _, number := range numbers {
		res := o.processPR(ctx, run, number, cleanup)
		phase.record(res)
	}
	return phase
}

// processPR evaluates one PR and acts on the verdict. It is the single
// last-resort boundary: a panic anywhere below becomes an error result,
// never an aborted run.
func (o *Orchestrator) processPR(ctx context.Context, run *Run, number int, cleanup bool) (res PRResult) {
	res = PRResult{Number: number}
	defer func() {
		if r := recover(); r != nil {
			oerr := &OrchestrationError{Op: "process", PR: number, Err: fmt.Errorf("%v", r)}
			o.log.Error("pull request processing panicked", zap.Int("pr", number), zap.Error(oerr))
			res.Outcome = OutcomeError
			res.Error = oerr.Error()
		}
	}()

	rec := o.gw.GetPullRequest(ctx, number)
	if rec == nil {
		res.Outcome = OutcomeError
		res.Error = (&OrchestrationError{Op: "fetch", PR: number, Err: fmt.Errorf("pull request unavailable")}).Error()
		return res
	}
	res.Title = rec.Title

	facts := o.buildFacts(ctx, rec)
	ev := o.matrix.Evaluate(facts)
	run.Evaluations = append(run.Evaluations, ev)

	res.Type = ev.Type
	res.Decision = ev.Decision
	res.Confidence = ev.Confidence

	switch ev.Decision {
	case decision.VerdictAutoMerge:
		checks := rec.CheckStatuses
		if !o.gw.DryRun() {
			// Checks may have been re-triggered since evaluation; wait for
			// them to settle and re-read before the irreversible part.
			if st := WaitForChecks(ctx, o.gw, number, o.poll); st != ci.OverallSuccess {
				o.log.Warn("checks did not settle green before merge",
					zap.Int("pr", number), zap.String("status", string(st)))
				res.Outcome = OutcomeSkipped
				return res
			}
			if fresh := o.gw.GetPullRequest(ctx, number); fresh != nil {
				rec = fresh
				checks = fresh.CheckStatuses
			}
		}
		if !ci.CanMerge(checks, o.policy.RequiredChecks, o.policy.CriticalChecks) {
			o.log.Warn("required or critical checks unmet; not merging",
				zap.Int("pr", number),
				zap.Strings("required", o.policy.RequiredChecks),
				zap.Strings("critical", o.policy.CriticalChecks))
			res.Outcome = OutcomeSkipped
			return res
		}
		if o.gw.MergePullRequest(ctx, number, o.policy.MergeMethod) {
			res.Outcome = OutcomeMerged
			if rec.HeadRef != "" {
				o.gw.DeleteBranch(ctx, rec.HeadRef)
			}
		} else {
			res.Outcome = OutcomeError
			res.Error = (&OrchestrationError{Op: "merge", PR: number, Err: fmt.Errorf("merge call failed")}).Error()
		}
	case decision.VerdictReadyForMerge:
		if !o.gw.Approve(ctx, number, fmt.Sprintf("Automated triage: confidence %.1f%%, one review from auto-merge.", ev.Confidence)) {
			o.log.Warn("approval call failed", zap.Int("pr", number))
		}
		if o.gw.AddComment(ctx, number, o.evalComment(rec, ev)) {
			res.Outcome = OutcomeCommented
		} else {
			res.Outcome = OutcomeError
			res.Error = (&OrchestrationError{Op: "comment", PR: number, Err: fmt.Errorf("comment call failed")}).Error()
		}
	case decision.VerdictNeedsReview, decision.VerdictBlocked:
		if cleanup && rec.HasConflicts {
			// A conflicting branch often just needs a base refresh.
			o.gw.UpdateBranch(ctx, number)
		}
		if o.gw.AddComment(ctx, number, o.evalComment(rec, ev)) {
			res.Outcome = OutcomeCommented
		} else {
			res.Outcome = OutcomeError
			res.Error = (&OrchestrationError{Op: "comment", PR: number, Err: fmt.Errorf("comment call failed")}).Error()
		}
	default: // manual_review
		if cleanup && o.isStale(rec.UpdatedAt) {
			if o.gw.AddComment(ctx, number, fmt.Sprintf(
				"Automated triage: no activity for %d+ days. Please rebase or close if no longer needed.",
				o.policy.StaleAfterDays)) {
				res.Outcome = OutcomeCommented
				return res
			}
		}
		res.Outcome = OutcomeSkipped
	}
	return res
}

func (o *Orchestrator) isStale(updatedAt time.Time) bool {
	if o.policy.StaleAfterDays <= 0 || updatedAt.IsZero() {
		return false
	}
	return o.now().Sub(updatedAt) > time.Duration(o.policy.StaleAfterDays)*24*time.Hour
}

// evalComment renders the evaluation as a PR comment, including
// remediation hints for failing checks.
func (o *Orchestrator) evalComment(rec *gh.PullRequestRecord, ev decision.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Automated triage: %s\n\n", ev.Decision)
	fmt.Fprintf(&b, "Type: %s | Score: %d/%d | Confidence: %.1f%%\n\n", ev.Type, ev.Score, ev.MaxScore, ev.Confidence)
	if len(ev.Reasons) > 0 {
		b.WriteString("Blocking:\n")
		for _, r := range ev.Reasons {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	for _, rem := range ci.Remediations(rec.CheckStatuses) {
		fmt.Fprintf(&b, "- [%s] %s\n", rem.Priority, rem.Description)
	}
	return strings.TrimSpace(b.String())
}

func mergeSummary(phases ...PhaseResult) Summary {
	var s Summary
	for _, p := range phases {
		s.Processed += p.Processed
		s.Merged += p.Merged
		s.Commented += p.Commented
		s.Skipped += p.Skipped
		s.Errors += p.Errors
	}
	if s.Processed > 0 {
		s.SuccessRate = 100 * float64(s.Processed-s.Errors) / float64(s.Processed)
	}
	return s
}

// recommend derives prioritized run-level follow-ups from the merged
// counters and the evaluation set.
func (o *Orchestrator) recommend(run *Run) []Recommendation {
	var recs []Recommendation

	var errorPRs, skippedPRs []int
	for _, p := range []PhaseResult{run.AutoReview, run.Cleanup} {
		for _, r := range p.Results {
			switch r.Outcome {
			case OutcomeError:
				errorPRs = append(errorPRs, r.Number)
			case OutcomeSkipped:
				skippedPRs = append(skippedPRs, r.Number)
			}
		}
	}

	if len(errorPRs) > 0 {
		recs = append(recs, Recommendation{
			Type:        "investigate_errors",
			Priority:    "high",
			Description: fmt.Sprintf("%d PR(s) hit errors during triage", len(errorPRs)),
			PRs:         errorPRs,
		})
	}
	if len(skippedPRs) > 0 {
		recs = append(recs, Recommendation{
			Type:        "manual_review_skipped_prs",
			Priority:    "medium",
			Description: fmt.Sprintf("%d PR(s) were skipped and still need a human decision", len(skippedPRs)),
			PRs:         skippedPRs,
		})
	}

	var lowConfidence []int
	for _, ev := range run.Evaluations {
		if ev.Decision == decision.VerdictManualReview && ev.Confidence < 60 {
			lowConfidence = append(lowConfidence, ev.PR)
		}
	}
	if len(lowConfidence) > 0 {
		recs = append(recs, Recommendation{
			Type:        "improve_pr_quality",
			Priority:    "medium",
			Description: fmt.Sprintf("%d PR(s) score too low to triage automatically; tests, reviews, or smaller diffs would help", len(lowConfidence)),
			PRs:         lowConfidence,
		})
	}

	if run.Summary.Merged > 0 {
		recs = append(recs, Recommendation{
			Type:        "merged",
			Priority:    "info",
			Description: fmt.Sprintf("%d PR(s) merged this run", run.Summary.Merged),
		})
	}
	if run.Summary.Commented > 0 {
		recs = append(recs, Recommendation{
			Type:        "commented",
			Priority:    "info",
			Description: fmt.Sprintf("%d PR(s) received triage comments", run.Summary.Commented),
		})
	}
	return recs
}
