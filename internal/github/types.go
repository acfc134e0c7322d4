package github

import (
	"strings"
	"time"
)

// Check status values as they appear in the merged check map.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusError      = "error"
	StatusTimedOut   = "timed_out"
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusNeutral    = "neutral"
	StatusSkipped    = "skipped"
	StatusCancelled  = "cancelled"
)

// Mergeable states reported by GitHub for a PR.
const (
	MergeableClean       = "clean"
	MergeableConflicting = "conflicting"
	MergeableUnstable    = "unstable"
	MergeableUnknown     = "unknown"
)

// PullRequestRecord is a snapshot of a PR plus its check statuses.
// Records are built fresh on each fetch and never mutated afterwards.
type PullRequestRecord struct {
	Number             int               `json:"number"`
	Title              string            `json:"title"`
	Body               string            `json:"body,omitempty"`
	State              string            `json:"state"`
	Author             string            `json:"author"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	HeadRef            string            `json:"headRef"`
	BaseRef            string            `json:"baseRef"`
	HeadSHA            string            `json:"headSha"`
	Draft              bool              `json:"draft"`
	Mergeable          *bool             `json:"mergeable"`
	MergeableState     string            `json:"mergeableState"`
	Additions          int               `json:"additions"`
	Deletions          int               `json:"deletions"`
	ChangedFiles       int               `json:"changedFiles"`
	Labels             []string          `json:"labels"`
	RequestedReviewers []string          `json:"requestedReviewers"`
	CheckStatuses      map[string]string `json:"checkStatuses"`

	// Derived flags, computed once at construction.
	IsDependabot bool `json:"isDependabot"`
	IsSecurity   bool `json:"isSecurity"`
	HasConflicts bool `json:"hasConflicts"`
}

func (pr *PullRequestRecord) deriveFlags() {
	author := strings.ToLower(pr.Author)
	pr.IsDependabot = author == "dependabot[bot]" || author == "dependabot"
	for _, l := range pr.Labels {
		if strings.Contains(strings.ToLower(l), "security") {
			pr.IsSecurity = true
			break
		}
	}
	// The REST API reports conflicts as "dirty"; keep the normalized name too.
	pr.HasConflicts = pr.MergeableState == MergeableConflicting ||
		pr.MergeableState == "dirty" ||
		(pr.Mergeable != nil && !*pr.Mergeable)
}

// TotalChanges is additions plus deletions.
func (pr *PullRequestRecord) TotalChanges() int {
	return pr.Additions + pr.Deletions
}

// ChangedFile is one file touched by a PR.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Review is a submitted PR review.
type Review struct {
	Author      string    `json:"author"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// WorkflowRun is one Actions run, used when re-triggering failed CI.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadSHA    string    `json:"headSha"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RateLimitStatus reports the remaining core-API budget.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// --- wire structs (GitHub REST response shapes, minimal fields) ---

type prResponse struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	Draft     bool   `json:"draft"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Mergeable      *bool  `json:"mergeable"`
	MergeableState string `json:"mergeable_state"`
	Additions      int    `json:"additions"`
	Deletions      int    `json:"deletions"`
	ChangedFiles   int    `json:"changed_files"`
	Labels         []struct {
		Name string `json:"name"`
	} `json:"labels"`
	RequestedReviewers []struct {
		Login string `json:"login"`
	} `json:"requested_reviewers"`
}

func (r prResponse) toRecord() PullRequestRecord {
	rec := PullRequestRecord{
		Number:         r.Number,
		Title:          r.Title,
		Body:           r.Body,
		State:          r.State,
		Author:         r.User.Login,
		Draft:          r.Draft,
		HeadRef:        r.Head.Ref,
		BaseRef:        r.Base.Ref,
		HeadSHA:        r.Head.SHA,
		Mergeable:      r.Mergeable,
		MergeableState: r.MergeableState,
		Additions:      r.Additions,
		Deletions:      r.Deletions,
		ChangedFiles:   r.ChangedFiles,
		CheckStatuses:  map[string]string{},
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	for _, l := range r.Labels {
		rec.Labels = append(rec.Labels, l.Name)
	}
	for _, u := range r.RequestedReviewers {
		rec.RequestedReviewers = append(rec.RequestedReviewers, u.Login)
	}
	rec.deriveFlags()
	return rec
}

type commitStatusResponse struct {
	State    string `json:"state"`
	Statuses []struct {
		State   string `json:"state"`
		Context string `json:"context"`
	} `json:"statuses"`
}

type checkRunsResponse struct {
	TotalCount int `json:"total_count"`
	CheckRuns  []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"check_runs"`
}

type reviewResponse struct {
	State string `json:"state"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
	SubmittedAt string `json:"submitted_at"`
}

type changedFileResponse struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type workflowRunsResponse struct {
	TotalCount   int `json:"total_count"`
	WorkflowRuns []struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		HeadSHA    string `json:"head_sha"`
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
		CreatedAt  string `json:"created_at"`
	} `json:"workflow_runs"`
}

type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}
