package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const pageSize = 100

// Client is the single boundary to the GitHub REST API: authenticated,
// paginated, retrying, rate-limit aware. In dry-run mode every mutating
// call logs its intent and succeeds without touching the network.
//
// Expected failure modes never surface as errors: lookups return nil and
// mutations return false so callers compose without exception-style flow.
type Client struct {
	httpClient *http.Client
	baseAPI    string
	owner      string
	repo       string
	dryRun     bool
	retry      RetryPolicy
	cache      *PRCache
	log        *zap.Logger
}

// Options configures a Client. Repository is "owner/name".
type Options struct {
	Repository string
	Token      string
	BaseAPI    string
	DryRun     bool
	Retry      RetryPolicy
	Cache      *PRCache
	Logger     *zap.Logger
	// HTTPClient overrides the token-derived client, for tests.
	HTTPClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	owner, repo, ok := strings.Cut(opts.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", opts.Repository)
	}
	if opts.BaseAPI == "" {
		opts.BaseAPI = "https://api.github.com"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.Token, 20*time.Second)
	}
	if opts.Token == "" {
		opts.Logger.Warn("no github token resolved; requests will be unauthenticated and tightly rate-limited")
	}
	return &Client{
		httpClient: hc,
		baseAPI:    strings.TrimSuffix(opts.BaseAPI, "/"),
		owner:      owner,
		repo:       repo,
		dryRun:     opts.DryRun,
		retry:      opts.Retry,
		cache:      opts.Cache,
		log:        opts.Logger,
	}, nil
}

// DryRun reports whether mutating calls are being simulated.
func (c *Client) DryRun() bool { return c.dryRun }

// InvalidatePR drops one PR from the lookup cache so the next fetch
// observes fresh remote state.
func (c *Client) InvalidatePR(number int) {
	if c.cache != nil {
		c.cache.Invalidate(number)
	}
}

// InvalidateCache expires the whole lookup cache.
func (c *Client) InvalidateCache() {
	if c.cache != nil {
		c.cache.InvalidateAll()
	}
}

// --- reads ---

// GetPullRequest fetches a PR plus its check statuses. Returns nil when the
// PR does not exist or the request ultimately fails after retries.
func (c *Client) GetPullRequest(ctx context.Context, number int) *PullRequestRecord {
	if c.cache != nil {
		if rec, ok := c.cache.Get(number); ok {
			return &rec
		}
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, number)
	body, status, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.log.Warn("pull request fetch failed", zap.Int("pr", number), zap.Error(err))
		return nil
	}
	if status == http.StatusNotFound {
		c.log.Info("pull request not found", zap.Int("pr", number))
		return nil
	}
	if status < 200 || status >= 300 {
		c.log.Warn("pull request fetch rejected", zap.Int("pr", number), zap.Int("status", status))
		return nil
	}
	pr, err := parseBody[prResponse](path, body)
	if err != nil {
		c.log.Warn("pull request response unreadable", zap.Int("pr", number), zap.Error(err))
		return nil
	}
	rec := pr.toRecord()
	rec.CheckStatuses = c.checkStatusesForSHA(ctx, rec.HeadSHA)
	if c.cache != nil {
		c.cache.Put(rec)
	}
	return &rec
}

// ListOpenPullRequests pages through open PRs (page size 100) until a page
// comes back short, returning them in API order. List items carry no check
// statuses; fetch the PR individually for those.
func (c *Client) ListOpenPullRequests(ctx context.Context) []PullRequestRecord {
	var out []PullRequestRecord
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&per_page=%d&page=%d",
			c.owner, c.repo, pageSize, page)
		body, status, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil || status < 200 || status >= 300 {
			c.log.Warn("open PR listing failed", zap.Int("page", page), zap.Int("status", status), zap.Error(err))
			return out
		}
		items, err := parseBody[[]prResponse](path, body)
		if err != nil {
			c.log.Warn("open PR page unreadable", zap.Int("page", page), zap.Error(err))
			return out
		}
		for _, it := range items {
			out = append(out, it.toRecord())
		}
		if len(items) < pageSize {
			return out
		}
	}
}

// GetCheckStatuses returns the merged check map for a PR: legacy commit
// statuses first, then check-runs, first-seen name wins.
func (c *Client) GetCheckStatuses(ctx context.Context, number int) map[string]string {
	rec := c.GetPullRequest(ctx, number)
	if rec == nil {
		return map[string]string{}
	}
	return rec.CheckStatuses
}

func (c *Client) checkStatusesForSHA(ctx context.Context, sha string) map[string]string {
	merged := map[string]string{}
	if sha == "" {
		return merged
	}

	// Classic commit statuses. A name seen here is never overwritten by a
	// check-run of the same name.
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/status", c.owner, c.repo, sha)
	if body, status, err := c.request(ctx, http.MethodGet, path, nil); err == nil && status >= 200 && status < 300 {
		if cs, perr := parseBody[commitStatusResponse](path, body); perr == nil {
			for _, s := range cs.Statuses {
				if _, seen := merged[s.Context]; !seen {
					merged[s.Context] = s.State
				}
			}
		}
	}

	// Check runs, paginated.
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs?per_page=%d&page=%d",
			c.owner, c.repo, sha, pageSize, page)
		body, status, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil || status < 200 || status >= 300 {
			break
		}
		cr, perr := parseBody[checkRunsResponse](path, body)
		if perr != nil {
			break
		}
		for _, run := range cr.CheckRuns {
			if _, seen := merged[run.Name]; !seen {
				merged[run.Name] = normalizeCheckRun(run.Status, run.Conclusion)
			}
		}
		if len(cr.CheckRuns) < pageSize {
			break
		}
	}
	return merged
}

func normalizeCheckRun(status, conclusion string) string {
	switch {
	case conclusion != "":
		return conclusion
	case status == "completed":
		return StatusSuccess
	case status == StatusQueued || status == StatusInProgress:
		return StatusPending
	default:
		return status
	}
}

// GetFiles returns the files changed by a PR.
func (c *Client) GetFiles(ctx context.Context, number int) []ChangedFile {
	var out []ChangedFile
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.owner, c.repo, number, pageSize, page)
		body, status, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil || status < 200 || status >= 300 {
			return out
		}
		files, perr := parseBody[[]changedFileResponse](path, body)
		if perr != nil {
			return out
		}
		for _, f := range files {
			out = append(out, ChangedFile(f))
		}
		if len(files) < pageSize {
			return out
		}
	}
}

// GetReviews returns submitted reviews for a PR.
func (c *Client) GetReviews(ctx context.Context, number int) []Review {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", c.owner, c.repo, number)
	body, status, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	revs, perr := parseBody[[]reviewResponse](path, body)
	if perr != nil {
		return nil
	}
	out := make([]Review, 0, len(revs))
	for _, r := range revs {
		rv := Review{Author: r.User.Login, State: r.State}
		rv.SubmittedAt, _ = time.Parse(time.RFC3339, r.SubmittedAt)
		out = append(out, rv)
	}
	return out
}

// GetWorkflowRuns returns recent Actions runs for the repository.
func (c *Client) GetWorkflowRuns(ctx context.Context, limit int) []WorkflowRun {
	if limit <= 0 || limit > pageSize {
		limit = pageSize
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/runs?per_page=%d", c.owner, c.repo, limit)
	body, status, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	wr, perr := parseBody[workflowRunsResponse](path, body)
	if perr != nil {
		return nil
	}
	out := make([]WorkflowRun, 0, len(wr.WorkflowRuns))
	for _, r := range wr.WorkflowRuns {
		run := WorkflowRun{ID: r.ID, Name: r.Name, HeadSHA: r.HeadSHA, Status: r.Status, Conclusion: r.Conclusion}
		run.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
		out = append(out, run)
	}
	return out
}

// GetRateLimitStatus reports the remaining core-API budget, or nil.
func (c *Client) GetRateLimitStatus(ctx context.Context) *RateLimitStatus {
	path := "/rate_limit"
	body, status, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	rl, perr := parseBody[rateLimitResponse](path, body)
	if perr != nil {
		return nil
	}
	return &RateLimitStatus{
		Limit:     rl.Resources.Core.Limit,
		Remaining: rl.Resources.Core.Remaining,
		ResetAt:   time.Unix(rl.Resources.Core.Reset, 0),
	}
}

// --- mutations ---

// MergePullRequest merges a PR with the given method (merge, squash, rebase).
func (c *Client) MergePullRequest(ctx context.Context, number int, method string) bool {
	if method == "" {
		method = "merge"
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", c.owner, c.repo, number)
	ok := c.mutate(ctx, fmt.Sprintf("merge PR #%d (%s)", number, method),
		http.MethodPut, path, map[string]string{"merge_method": method})
	if ok {
		c.InvalidatePR(number)
	}
	return ok
}

// ClosePullRequest closes a PR without merging.
func (c *Client) ClosePullRequest(ctx context.Context, number int) bool {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.owner, c.repo, number)
	ok := c.mutate(ctx, fmt.Sprintf("close PR #%d", number),
		http.MethodPatch, path, map[string]string{"state": "closed"})
	if ok {
		c.InvalidatePR(number)
	}
	return ok
}

// AddComment posts an issue comment on a PR.
func (c *Client) AddComment(ctx context.Context, number int, body string) bool {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, number)
	return c.mutate(ctx, fmt.Sprintf("comment on PR #%d", number),
		http.MethodPost, path, map[string]string{"body": body})
}

// Approve submits an approving review.
func (c *Client) Approve(ctx context.Context, number int, body string) bool {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", c.owner, c.repo, number)
	return c.mutate(ctx, fmt.Sprintf("approve PR #%d", number),
		http.MethodPost, path, map[string]string{"event": "APPROVE", "body": body})
}

// UpdateBranch brings a PR branch up to date with its base.
func (c *Client) UpdateBranch(ctx context.Context, number int) bool {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/update-branch", c.owner, c.repo, number)
	ok := c.mutate(ctx, fmt.Sprintf("update branch of PR #%d", number),
		http.MethodPut, path, map[string]any{})
	if ok {
		c.InvalidatePR(number)
	}
	return ok
}

// DeleteBranch deletes a head branch after merge.
func (c *Client) DeleteBranch(ctx context.Context, branch string) bool {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", c.owner, c.repo, branch)
	return c.mutate(ctx, fmt.Sprintf("delete branch %s", branch),
		http.MethodDelete, path, nil)
}

// RerunWorkflow re-triggers a failed Actions run.
func (c *Client) RerunWorkflow(ctx context.Context, runID int64) bool {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/rerun", c.owner, c.repo, runID)
	return c.mutate(ctx, fmt.Sprintf("rerun workflow %d", runID),
		http.MethodPost, path, map[string]any{})
}

// mutate performs one mutating call. In dry-run it logs the intent and
// reports success without a network round trip. A 2xx response counts as
// success even when the body is empty or not JSON (synthetic ok).
func (c *Client) mutate(ctx context.Context, intent, method, path string, payload any) bool {
	if c.dryRun {
		c.log.Info("dry-run: would " + intent)
		return true
	}
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			c.log.Error("mutation payload marshal failed", zap.String("op", intent), zap.Error(err))
			return false
		}
	}
	respBody, status, err := c.request(ctx, method, path, body)
	if err != nil {
		c.log.Warn("mutation failed", zap.String("op", intent), zap.Error(err))
		return false
	}
	if status < 200 || status >= 300 {
		c.log.Warn("mutation rejected",
			zap.String("op", intent),
			zap.Int("status", status),
			zap.String("body", strings.TrimSpace(string(respBody))))
		return false
	}
	if _, perr := parseBody[map[string]any](path, respBody); perr != nil {
		c.log.Debug("mutation succeeded with empty or non-JSON body", zap.String("op", intent))
	}
	return true
}

// request performs one HTTP call with the retry policy applied: up to
// MaxAttempts tries, exponential backoff on transport failures, and a
// computed hold-off on rate-limited 403s before the next attempt.
func (c *Client) request(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var lastErr error
	skipBackoff := false
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 && !skipBackoff {
			if err := c.retry.Backoff(ctx, attempt-1); err != nil {
				return nil, 0, err
			}
		}
		skipBackoff = false

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseAPI+path, reader)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.Debug("request attempt failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if isRateLimited(resp) {
			wait := c.retry.RateLimitWait(resp.Header)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.log.Warn("rate limited; holding off", zap.String("path", path), zap.Duration("wait", wait))
			if err := c.retry.Wait(ctx, wait); err != nil {
				return nil, 0, err
			}
			lastErr = fmt.Errorf("rate limited on %s", path)
			skipBackoff = true
			continue
		}

		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return b, resp.StatusCode, nil
	}
	return nil, 0, fmt.Errorf("request %s %s exhausted %d attempts: %w", method, path, c.retry.MaxAttempts, lastErr)
}
