package github

import "context"

// Gateway is the surface the orchestrator and server depend on, so tests
// can substitute a deterministic fake for the real client.
type Gateway interface {
	GetPullRequest(ctx context.Context, number int) *PullRequestRecord
	ListOpenPullRequests(ctx context.Context) []PullRequestRecord
	GetCheckStatuses(ctx context.Context, number int) map[string]string
	GetFiles(ctx context.Context, number int) []ChangedFile
	GetReviews(ctx context.Context, number int) []Review
	GetWorkflowRuns(ctx context.Context, limit int) []WorkflowRun
	GetRateLimitStatus(ctx context.Context) *RateLimitStatus

	MergePullRequest(ctx context.Context, number int, method string) bool
	ClosePullRequest(ctx context.Context, number int) bool
	AddComment(ctx context.Context, number int, body string) bool
	Approve(ctx context.Context, number int, body string) bool
	UpdateBranch(ctx context.Context, number int) bool
	DeleteBranch(ctx context.Context, branch string) bool
	RerunWorkflow(ctx context.Context, runID int64) bool

	InvalidatePR(number int)
	DryRun() bool
}

var _ Gateway = (*Client)(nil)
