// Package decision scores PRs against per-type weighted criteria and maps
// the score to a triage verdict. Everything here is a pure function of the
// input facts: no network, no clocks, no mutable state.
package decision

import (
	"fmt"
	"strings"
)

const maxScore = 100

type factorSpec struct {
	name     string
	weight   int
	required bool
}

type criteria struct {
	threshold int
	factors   []factorSpec
}

// Per-type criteria tables. Weights of a table sum to 100 so the score is
// directly comparable across types. Required factors block regardless of
// score. Unrecognized types fall back to the bugfix rules.
var criteriaByType = map[PRType]criteria{
	TypeDependabot: {
		threshold: 80,
		factors: []factorSpec{
			{"ci_passing", 30, true},
			{"no_major_version", 20, false},
			{"security_update", 25, false},
			{"no_conflicts", 15, true},
			{"small_change", 10, false},
		},
	},
	TypeSecurity: {
		threshold: 90,
		factors: []factorSpec{
			{"ci_passing", 20, true},
			{"fixes_vulnerability", 35, false},
			{"no_breaking_changes", 20, false},
			{"security_scans_pass", 25, true},
		},
	},
	TypeFeature: {
		threshold: 95,
		factors: []factorSpec{
			{"ci_passing", 20, true},
			{"has_tests", 25, true},
			{"has_documentation", 15, false},
			{"code_reviewed", 25, true},
			{"manageable_size", 15, false},
		},
	},
	TypeBugfix: {
		threshold: 85,
		factors: []factorSpec{
			{"ci_passing", 30, true},
			{"has_tests", 25, false},
			{"fixes_issue", 25, false},
			{"no_regressions", 20, true},
		},
	},
}

// Factor evaluators, keyed by factor name. Each is an independent boolean
// predicate over the facts plus a short human-readable detail.
var evaluators = map[string]func(Facts) (bool, string){
	"ci_passing": func(f Facts) (bool, string) {
		ok := f.CIStatus == "success" || f.CIStatus == "passed" || f.CIStatus == "passing"
		return ok, "ci status: " + orUnknown(f.CIStatus)
	},
	"no_major_version": func(f Facts) (bool, string) {
		return !f.IsMajorVersionBump, fmt.Sprintf("major version bump: %t", f.IsMajorVersionBump)
	},
	"security_update": func(f Facts) (bool, string) {
		return f.IsSecurityUpdate, fmt.Sprintf("security update: %t", f.IsSecurityUpdate)
	},
	"no_conflicts": func(f Facts) (bool, string) {
		return !f.HasConflicts, fmt.Sprintf("merge conflicts: %t", f.HasConflicts)
	},
	"small_change": func(f Facts) (bool, string) {
		return f.TotalChanges < 100, fmt.Sprintf("total changes: %d", f.TotalChanges)
	},
	"fixes_vulnerability": func(f Facts) (bool, string) {
		return len(f.VulnerabilitiesFixed) > 0, "vulnerabilities fixed: " + strings.Join(f.VulnerabilitiesFixed, ", ")
	},
	"no_breaking_changes": func(f Facts) (bool, string) {
		return !f.HasBreakingChanges, fmt.Sprintf("breaking changes: %t", f.HasBreakingChanges)
	},
	"security_scans_pass": func(f Facts) (bool, string) {
		ok := f.SecurityScansStatus == "passed" || f.SecurityScansStatus == "success"
		return ok, "security scans: " + orUnknown(f.SecurityScansStatus)
	},
	"has_tests": func(f Facts) (bool, string) {
		return f.HasTests, fmt.Sprintf("tests touched: %t", f.HasTests)
	},
	"has_documentation": func(f Facts) (bool, string) {
		return f.HasDocumentation, fmt.Sprintf("documentation touched: %t", f.HasDocumentation)
	},
	"code_reviewed": func(f Facts) (bool, string) {
		return f.ReviewCount > 0, fmt.Sprintf("reviews: %d", f.ReviewCount)
	},
	"manageable_size": func(f Facts) (bool, string) {
		return f.FilesChanged < 20, fmt.Sprintf("files changed: %d", f.FilesChanged)
	},
	"fixes_issue": func(f Facts) (bool, string) {
		return f.FixesIssue, fmt.Sprintf("linked issue: %t", f.FixesIssue)
	},
	"no_regressions": func(f Facts) (bool, string) {
		return !f.HasRegressions, fmt.Sprintf("regressions detected: %t", f.HasRegressions)
	},
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// ClassifyType tags a PR so the right criteria table applies.
func ClassifyType(f Facts) PRType {
	if f.IsDependabot {
		return TypeDependabot
	}
	if f.IsSecurityUpdate || len(f.VulnerabilitiesFixed) > 0 {
		return TypeSecurity
	}
	title := strings.ToLower(f.Title)
	switch {
	case strings.HasPrefix(title, "feat"), strings.Contains(title, "feature"):
		return TypeFeature
	case strings.HasPrefix(title, "fix"), strings.Contains(title, "bugfix"), strings.Contains(title, "hotfix"):
		return TypeBugfix
	}
	return TypeOther
}

// Matrix holds per-type threshold overrides from the policy file; the
// factor tables themselves are fixed.
type Matrix struct {
	thresholds map[PRType]int
}

func NewMatrix(thresholdOverrides map[string]int) *Matrix {
	m := &Matrix{thresholds: map[PRType]int{}}
	for typ, th := range thresholdOverrides {
		m.thresholds[PRType(typ)] = th
	}
	return m
}

func (m *Matrix) criteriaFor(typ PRType) (PRType, criteria) {
	crit, ok := criteriaByType[typ]
	if !ok {
		// other and anything unrecognized use the bugfix rules
		crit = criteriaByType[TypeBugfix]
	}
	if th, ok := m.thresholds[typ]; ok {
		crit.threshold = th
	}
	return typ, crit
}

// Evaluate scores one PR. The decision is blocked whenever a required
// factor is unmet, regardless of score; otherwise it is a monotonic
// function of score against the type's threshold.
func (m *Matrix) Evaluate(f Facts) Evaluation {
	typ := ClassifyType(f)
	typ, crit := m.criteriaFor(typ)

	ev := Evaluation{
		PR:       f.Number,
		Type:     typ,
		MaxScore: maxScore,
	}

	var unmetRequired []FactorResult
	var unmetOptional []FactorResult
	for _, spec := range crit.factors {
		met, details := evaluators[spec.name](f)
		fr := FactorResult{
			Name:     spec.name,
			Met:      met,
			Weight:   spec.weight,
			Required: spec.required,
			Details:  details,
		}
		ev.Factors = append(ev.Factors, fr)
		if met {
			ev.Score += spec.weight
		} else if spec.required {
			unmetRequired = append(unmetRequired, fr)
		} else {
			unmetOptional = append(unmetOptional, fr)
		}
	}

	ev.Confidence = float64(ev.Score) * 100 / float64(ev.MaxScore)

	threshold := float64(crit.threshold)
	score := float64(ev.Score)
	switch {
	case len(unmetRequired) > 0:
		ev.Decision = VerdictBlocked
	case score >= threshold:
		ev.Decision = VerdictAutoMerge
	case score >= 0.8*threshold:
		ev.Decision = VerdictReadyForMerge
	case score >= 0.6*threshold:
		ev.Decision = VerdictNeedsReview
	default:
		ev.Decision = VerdictManualReview
	}

	for _, fr := range unmetRequired {
		ev.Reasons = append(ev.Reasons, "required factor not met: "+fr.Name)
		ev.Actions = append(ev.Actions, Action{
			Type:        "fix",
			Priority:    "critical",
			Description: fmt.Sprintf("resolve %s (%s)", fr.Name, fr.Details),
		})
	}

	switch ev.Decision {
	case VerdictAutoMerge:
		ev.Actions = append(ev.Actions, Action{
			Type:        "merge",
			Priority:    "high",
			Description: fmt.Sprintf("auto-merge PR #%d (confidence %.1f%%)", f.Number, ev.Confidence),
		})
	case VerdictReadyForMerge:
		ev.Actions = append(ev.Actions, Action{
			Type:        "review",
			Priority:    "high",
			Description: fmt.Sprintf("quick review for PR #%d, close to auto-merge", f.Number),
		})
	case VerdictNeedsReview:
		ev.Actions = append(ev.Actions, Action{
			Type:        "review",
			Priority:    "medium",
			Description: fmt.Sprintf("review PR #%d before merge", f.Number),
		})
	}

	for _, fr := range unmetOptional {
		ev.Actions = append(ev.Actions, Action{
			Type:        "improve",
			Priority:    "low",
			Description: fmt.Sprintf("consider improving %s (%s)", fr.Name, fr.Details),
		})
	}

	return ev
}
