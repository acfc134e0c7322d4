package decision

// PRType tags which criteria table applies to a PR.
type PRType string

const (
	TypeDependabot PRType = "dependabot"
	TypeSecurity   PRType = "security"
	TypeFeature    PRType = "feature"
	TypeBugfix     PRType = "bugfix"
	TypeOther      PRType = "other"
)

// Verdict is the triage outcome for one PR.
type Verdict string

const (
	VerdictBlocked       Verdict = "blocked"
	VerdictManualReview  Verdict = "manual_review"
	VerdictNeedsReview   Verdict = "needs_review"
	VerdictReadyForMerge Verdict = "ready_for_merge"
	VerdictAutoMerge     Verdict = "auto_merge"
)

// Rank orders verdicts from worst to best, for monotonicity checks and
// prioritization: blocked < manual_review < needs_review < ready_for_merge
// < auto_merge.
func (v Verdict) Rank() int {
	switch v {
	case VerdictBlocked:
		return 0
	case VerdictManualReview:
		return 1
	case VerdictNeedsReview:
		return 2
	case VerdictReadyForMerge:
		return 3
	case VerdictAutoMerge:
		return 4
	}
	return -1
}

// FactorResult is one evaluated criterion.
type FactorResult struct {
	Name     string `json:"name"`
	Met      bool   `json:"met"`
	Weight   int    `json:"weight"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

// Action is a recommended follow-up attached to an evaluation.
type Action struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

// Evaluation is the full scoring result for one PR. Identical inputs
// always produce identical evaluations.
type Evaluation struct {
	PR         int            `json:"pr"`
	Type       PRType         `json:"type"`
	Score      int            `json:"score"`
	MaxScore   int            `json:"maxScore"`
	Factors    []FactorResult `json:"factors"`
	Confidence float64        `json:"confidence"`
	Decision   Verdict        `json:"decision"`
	Reasons    []string       `json:"reasons,omitempty"`
	Actions    []Action       `json:"actions,omitempty"`
}

// Facts are the PR attributes the matrix scores. They are assembled by the
// orchestrator from gateway data; the matrix itself never does I/O.
type Facts struct {
	Number       int
	Title        string
	Author       string
	Labels       []string
	CIStatus     string
	HasConflicts bool

	TotalChanges int
	FilesChanged int

	HasTests         bool
	HasDocumentation bool
	ReviewCount      int

	IsDependabot       bool
	IsMajorVersionBump bool
	IsSecurityUpdate   bool

	VulnerabilitiesFixed []string
	HasBreakingChanges   bool
	SecurityScansStatus  string

	FixesIssue     bool
	HasRegressions bool
}
