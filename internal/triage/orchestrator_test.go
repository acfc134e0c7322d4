package triage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtriage/internal/ci"
	"prtriage/internal/config"
	"prtriage/internal/decision"
	gh "prtriage/internal/github"
)

// fakeGateway is a deterministic in-memory Gateway.
type fakeGateway struct {
	prs     map[int]*gh.PullRequestRecord
	order   []int
	reviews map[int][]gh.Review
	files   map[int][]gh.ChangedFile

	merged          []int
	commented       []int
	approved        []int
	deletedBranches []string
	invalidated     []int
	failMerge       bool
	failApprove     bool
	unfetchable     map[int]bool

	// checksSequence, when set, overrides per-poll check results.
	checksSequence []map[string]string
	pollCalls      int
}

func (f *fakeGateway) GetPullRequest(_ context.Context, number int) *gh.PullRequestRecord {
	rec, ok := f.prs[number]
	if !ok || f.unfetchable[number] {
		return nil
	}
	cp := *rec
	return &cp
}

func (f *fakeGateway) ListOpenPullRequests(context.Context) []gh.PullRequestRecord {
	var out []gh.PullRequestRecord
	for _, n := range f.order {
		out = append(out, *f.prs[n])
	}
	return out
}

func (f *fakeGateway) GetCheckStatuses(_ context.Context, number int) map[string]string {
	if len(f.checksSequence) > 0 {
		i := f.pollCalls
		if i >= len(f.checksSequence) {
			i = len(f.checksSequence) - 1
		}
		f.pollCalls++
		return f.checksSequence[i]
	}
	if rec, ok := f.prs[number]; ok {
		return rec.CheckStatuses
	}
	return map[string]string{}
}

func (f *fakeGateway) GetFiles(_ context.Context, number int) []gh.ChangedFile {
	return f.files[number]
}
func (f *fakeGateway) GetReviews(_ context.Context, number int) []gh.Review   { return f.reviews[number] }
func (f *fakeGateway) GetWorkflowRuns(context.Context, int) []gh.WorkflowRun  { return nil }
func (f *fakeGateway) GetRateLimitStatus(context.Context) *gh.RateLimitStatus { return nil }

func (f *fakeGateway) MergePullRequest(_ context.Context, number int, _ string) bool {
	if f.failMerge {
		return false
	}
	f.merged = append(f.merged, number)
	return true
}
func (f *fakeGateway) ClosePullRequest(context.Context, int) bool { return true }
func (f *fakeGateway) AddComment(_ context.Context, number int, _ string) bool {
	f.commented = append(f.commented, number)
	return true
}
func (f *fakeGateway) Approve(_ context.Context, number int, _ string) bool {
	f.approved = append(f.approved, number)
	return !f.failApprove
}
func (f *fakeGateway) UpdateBranch(context.Context, int) bool { return true }
func (f *fakeGateway) DeleteBranch(_ context.Context, branch string) bool {
	f.deletedBranches = append(f.deletedBranches, branch)
	return true
}
func (f *fakeGateway) RerunWorkflow(context.Context, int64) bool { return true }
func (f *fakeGateway) InvalidatePR(number int)                   { f.invalidated = append(f.invalidated, number) }
func (f *fakeGateway) DryRun() bool                              { return false }

func pr(number int, title, author string, labels []string, checks map[string]string) *gh.PullRequestRecord {
	rec := &gh.PullRequestRecord{
		Number:        number,
		Title:         title,
		Author:        author,
		State:         "open",
		HeadRef:       "branch-" + title[:3],
		Labels:        labels,
		CheckStatuses: checks,
		UpdatedAt:     time.Now(),
	}
	if author == "dependabot[bot]" {
		rec.IsDependabot = true
	}
	for _, l := range labels {
		if l == "security" {
			rec.IsSecurity = true
		}
	}
	return rec
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.Repository = "octo/widgets"
	return p
}

func newTestGateway() *fakeGateway {
	passing := map[string]string{"unit-tests": "success", "build": "success", "security-scan": "success"}
	f := &fakeGateway{
		prs:     map[int]*gh.PullRequestRecord{},
		reviews: map[int][]gh.Review{},
		files:   map[int][]gh.ChangedFile{},
	}

	// dependabot security patch: scores 100, auto-merges
	bot := pr(1, "Bump lodash from 4.17.20 to 4.17.21", "dependabot[bot]", []string{"security"}, passing)
	bot.Additions = 5
	bot.Deletions = 5
	f.prs[1] = bot

	// feature with failing CI: blocked, gets a comment in cleanup
	f.prs[2] = pr(2, "feat: export endpoint", "alice", nil, map[string]string{"unit-tests": "failure"})
	f.files[2] = []gh.ChangedFile{{Filename: "export.go"}, {Filename: "export_test.go"}}
	f.reviews[2] = []gh.Review{{Author: "bob", State: "APPROVED"}}

	// uncategorized PR with passing CI but nothing else: manual review, skipped
	f.prs[3] = pr(3, "assorted changes", "carol", nil, passing)

	f.order = []int{1, 2, 3}
	return f
}

func TestRunPhasesAndCounters(t *testing.T) {
	f := newTestGateway()
	run := New(f, testPolicy(), nil).Run(context.Background(), ModeLive)

	// phase routing: dependabot PR in auto-review, the rest in cleanup
	require.Equal(t, 1, run.AutoReview.Processed)
	require.Equal(t, 2, run.Cleanup.Processed)

	assert.Equal(t, []int{1}, f.merged)
	assert.Equal(t, []int{2}, f.commented)
	assert.Equal(t, 1, run.Summary.Merged)
	assert.Equal(t, 1, run.Summary.Commented)
	assert.Equal(t, 1, run.Summary.Skipped)
	assert.Equal(t, 0, run.Summary.Errors)
	assert.Equal(t, 3, run.Summary.Processed)
	assert.InDelta(t, 100.0, run.Summary.SuccessRate, 0.001)

	// merged branch cleaned up
	assert.Len(t, f.deletedBranches, 1)
}

func TestCleanupCoversExactlyTheUncoveredSet(t *testing.T) {
	f := newTestGateway()
	run := New(f, testPolicy(), nil).Run(context.Background(), ModeDryRun)

	covered := map[int]bool{}
	for _, r := range run.AutoReview.Results {
		assert.False(t, covered[r.Number])
		covered[r.Number] = true
	}
	for _, r := range run.Cleanup.Results {
		assert.False(t, covered[r.Number], "PR #%d processed twice", r.Number)
		covered[r.Number] = true
	}
	assert.Len(t, covered, 3)
}

func TestRunIsIdempotentAgainstUnchangedState(t *testing.T) {
	policy := testPolicy()

	first := New(newTestGateway(), policy, nil).Run(context.Background(), ModeDryRun)
	second := New(newTestGateway(), policy, nil).Run(context.Background(), ModeDryRun)

	a, err := json.Marshal(first.Evaluations)
	require.NoError(t, err)
	b, err := json.Marshal(second.Evaluations)
	require.NoError(t, err)
	assert.Equal(t, a, b, "unchanged remote state must yield an identical decision set")
}

func TestMergeFailureRecordedAsErrorAndRunContinues(t *testing.T) {
	f := newTestGateway()
	f.failMerge = true
	run := New(f, testPolicy(), nil).Run(context.Background(), ModeLive)

	assert.Equal(t, 1, run.Summary.Errors)
	assert.Equal(t, 3, run.Summary.Processed, "a failed PR must not abort the batch")
	assert.True(t, run.HasBlockingIssues())

	var found bool
	for _, rec := range run.Recommendations {
		if rec.Type == "investigate_errors" {
			found = true
			assert.Equal(t, "high", rec.Priority)
			assert.Equal(t, []int{1}, rec.PRs)
		}
	}
	assert.True(t, found)
}

func TestAutoMergeGatedOnRequiredChecks(t *testing.T) {
	// CI is green overall but the policy's required "test" check and
	// critical "security" check never ran; the merge must not happen.
	f := newTestGateway()
	f.prs = map[int]*gh.PullRequestRecord{
		1: pr(1, "Bump lodash from 4.17.20 to 4.17.21", "dependabot[bot]", []string{"security"}, map[string]string{"build": "success"}),
	}
	f.order = []int{1}

	run := New(f, testPolicy(), nil).Run(context.Background(), ModeLive)

	assert.Empty(t, f.merged)
	require.Len(t, run.AutoReview.Results, 1)
	assert.Equal(t, OutcomeSkipped, run.AutoReview.Results[0].Outcome)
	assert.Equal(t, decision.VerdictAutoMerge, run.AutoReview.Results[0].Decision)
}

func TestAutoMergeWaitsForRetriggeredChecks(t *testing.T) {
	// Checks were green at evaluation time but are re-running by the time
	// the merge path looks again; the orchestrator waits them out.
	f := newTestGateway()
	f.order = []int{1}
	f.prs = map[int]*gh.PullRequestRecord{1: f.prs[1]}
	f.checksSequence = []map[string]string{
		{"build": "pending"},
		f.prs[1].CheckStatuses,
	}

	o := New(f, testPolicy(), nil)
	now := time.Unix(1_700_000_000, 0)
	var slept []time.Duration
	o.poll = o.poll.WithClock(
		func() time.Time { return now },
		func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)

	run := o.Run(context.Background(), ModeLive)

	assert.Equal(t, []int{1}, f.merged)
	assert.Equal(t, 1, run.Summary.Merged)
	assert.Equal(t, 2, f.pollCalls)
	assert.Equal(t, []time.Duration{30 * time.Second}, slept)
}

func TestAutoMergeSkipsWhenChecksStayPending(t *testing.T) {
	f := newTestGateway()
	f.order = []int{1}
	f.prs = map[int]*gh.PullRequestRecord{1: f.prs[1]}
	f.checksSequence = []map[string]string{{"build": "pending"}}

	o := New(f, testPolicy(), nil)
	now := time.Unix(1_700_000_000, 0)
	o.poll = NewPollPolicy(30*time.Second, 100*time.Second).WithClock(
		func() time.Time { return now },
		func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	)

	run := o.Run(context.Background(), ModeLive)

	assert.Empty(t, f.merged)
	require.Len(t, run.AutoReview.Results, 1)
	assert.Equal(t, OutcomeSkipped, run.AutoReview.Results[0].Outcome)
}

func TestApproveFailureStillComments(t *testing.T) {
	// bugfix at 75/100: above the quick-review band, below auto-merge
	f := newTestGateway()
	fix := pr(4, "fix: retry flake", "erin", nil, f.prs[1].CheckStatuses)
	f.prs = map[int]*gh.PullRequestRecord{4: fix}
	f.order = []int{4}
	f.files[4] = []gh.ChangedFile{{Filename: "retry.go"}, {Filename: "retry_test.go"}}
	f.failApprove = true

	run := New(f, testPolicy(), nil).Run(context.Background(), ModeLive)

	assert.Equal(t, []int{4}, f.approved, "approval must be attempted")
	assert.Equal(t, []int{4}, f.commented)
	require.Len(t, run.Cleanup.Results, 1)
	assert.Equal(t, decision.VerdictReadyForMerge, run.Cleanup.Results[0].Decision)
	assert.Equal(t, OutcomeCommented, run.Cleanup.Results[0].Outcome)
}

func TestSecurityScansStatusUsesCriticalNames(t *testing.T) {
	checks := map[string]string{"sast": "success", "trivy": "failure", "build": "success"}
	assert.Equal(t, "failed", securityScansStatus(checks, []string{"sast", "trivy"}))
	assert.Equal(t, "passed", securityScansStatus(checks, []string{"sast"}))
	assert.Equal(t, "", securityScansStatus(checks, []string{"codeql"}))
	assert.Equal(t, "pending", securityScansStatus(map[string]string{"sast": "pending"}, []string{"sast"}))
	// no configured critical checks falls back to the security keyword
	assert.Equal(t, "passed", securityScansStatus(map[string]string{"security-scan": "success"}, nil))
}

func TestRecommendationsForSkippedAndLowConfidence(t *testing.T) {
	f := newTestGateway()
	run := New(f, testPolicy(), nil).Run(context.Background(), ModeDryRun)

	types := map[string]Recommendation{}
	for _, rec := range run.Recommendations {
		types[rec.Type] = rec
	}

	skipped, ok := types["manual_review_skipped_prs"]
	require.True(t, ok)
	assert.Equal(t, "medium", skipped.Priority)
	assert.Equal(t, []int{3}, skipped.PRs)

	quality, ok := types["improve_pr_quality"]
	require.True(t, ok)
	assert.Equal(t, []int{3}, quality.PRs)
}

func TestUnfetchablePRIsAnError(t *testing.T) {
	// PR appears in the listing but 404s on fetch, e.g. closed mid-run.
	f := newTestGateway()
	f.prs[404] = pr(404, "ghost PR", "dave", nil, nil)
	f.order = append(f.order, 404)
	f.unfetchable = map[int]bool{404: true}

	run := New(f, testPolicy(), nil).Run(context.Background(), ModeDryRun)
	assert.Equal(t, 1, run.Summary.Errors)
	assert.Equal(t, 4, run.Summary.Processed)
}

func TestWaitForChecksPollsUntilTerminal(t *testing.T) {
	f := newTestGateway()
	f.checksSequence = []map[string]string{
		{"build": "pending"},
		{"build": "pending"},
		{"build": "success"},
	}

	now := time.Unix(1_700_000_000, 0)
	p := NewPollPolicy(30*time.Second, 10*time.Minute).WithClock(
		func() time.Time { return now },
		func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	)

	got := WaitForChecks(context.Background(), f, 1, p)
	assert.Equal(t, ci.OverallSuccess, got)
	assert.Equal(t, 3, f.pollCalls)
	assert.Equal(t, []int{1, 1, 1}, f.invalidated, "every poll must bypass the cache")
}

func TestWaitForChecksTimesOutWithLastObserved(t *testing.T) {
	f := newTestGateway()
	f.checksSequence = []map[string]string{{"build": "pending"}}

	now := time.Unix(1_700_000_000, 0)
	p := NewPollPolicy(30*time.Second, 100*time.Second).WithClock(
		func() time.Time { return now },
		func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	)

	got := WaitForChecks(context.Background(), f, 1, p)
	assert.Equal(t, ci.OverallPending, got, "timeout returns the last observed non-terminal status")
	assert.Equal(t, 5, f.pollCalls, "four 30s sleeps fit in the 100s window")
}

func TestEvaluatePR(t *testing.T) {
	f := newTestGateway()
	o := New(f, testPolicy(), nil)

	ev := o.EvaluatePR(context.Background(), 1)
	require.NotNil(t, ev)
	assert.Equal(t, decision.TypeDependabot, ev.Type)
	assert.Equal(t, decision.VerdictAutoMerge, ev.Decision)

	assert.Nil(t, o.EvaluatePR(context.Background(), 12345))
}
