// Package ci reduces raw per-check results into an overall verdict,
// required-check coverage, and actionable failure classification. Every
// function here is a pure transform over the gateway's check map.
package ci

import (
	"sort"
	"strings"
)

// Overall is the reduced status of a PR's whole check set.
type Overall string

const (
	OverallSuccess  Overall = "success"
	OverallFailure  Overall = "failure"
	OverallPending  Overall = "pending"
	OverallNoChecks Overall = "no_checks"
	OverallUnknown  Overall = "unknown"
)

// StatusMissing marks a required check with no matching check at all.
const StatusMissing = "missing"

// OverallStatus reduces a check map. Failures dominate, then pending,
// then success; anything else is unknown.
func OverallStatus(checks map[string]string) Overall {
	if len(checks) == 0 {
		return OverallNoChecks
	}
	pending := false
	allPassing := true
	for _, status := range checks {
		switch status {
		case "failure", "error", "timed_out":
			return OverallFailure
		case "pending", "queued", "in_progress", "":
			pending = true
		case "success", "passed", "neutral", "skipped":
		default:
			allPassing = false
		}
	}
	if pending {
		return OverallPending
	}
	if allPassing {
		return OverallSuccess
	}
	return OverallUnknown
}

// RequiredCheck reports how one configured required-check name resolved
// against the actual check set.
type RequiredCheck struct {
	Name      string `json:"name"`
	MatchedAs string `json:"matchedAs,omitempty"`
	Status    string `json:"status"`
}

// RequiredCheckStatus matches each required name (case-insensitive
// substring) against the known check names. Unmatched names report missing.
func RequiredCheckStatus(checks map[string]string, requiredNames []string) []RequiredCheck {
	out := make([]RequiredCheck, 0, len(requiredNames))
	for _, name := range requiredNames {
		rc := RequiredCheck{Name: name, Status: StatusMissing}
		needle := strings.ToLower(name)
		for checkName, status := range checks {
			if strings.Contains(strings.ToLower(checkName), needle) {
				rc.MatchedAs = checkName
				rc.Status = status
				break
			}
		}
		out = append(out, rc)
	}
	return out
}

// CanMerge is false when any critical check is not passing or any required
// check has failed or is absent.
func CanMerge(checks map[string]string, requiredNames, criticalNames []string) bool {
	for _, rc := range RequiredCheckStatus(checks, criticalNames) {
		if rc.Status != "success" && rc.Status != "passed" {
			return false
		}
	}
	for _, rc := range RequiredCheckStatus(checks, requiredNames) {
		switch rc.Status {
		case "failure", "error", StatusMissing:
			return false
		}
	}
	return true
}

// FailurePattern classifies what kind of work a failing check implies.
type FailurePattern string

const (
	PatternTestFailure       FailurePattern = "test_failure"
	PatternLintingError      FailurePattern = "linting_error"
	PatternTypeError         FailurePattern = "type_error"
	PatternSecurityIssue     FailurePattern = "security_issue"
	PatternBuildFailure      FailurePattern = "build_failure"
	PatternDeploymentFailure FailurePattern = "deployment_failure"
)

var failureKeywords = []struct {
	keyword string
	pattern FailurePattern
}{
	{"test", PatternTestFailure},
	{"spec", PatternTestFailure},
	{"lint", PatternLintingError},
	{"type", PatternTypeError},
	{"security", PatternSecurityIssue},
	{"build", PatternBuildFailure},
	{"deploy", PatternDeploymentFailure},
}

// ClassifyFailure keyword-matches a check name; the second return is false
// when no pattern applies.
func ClassifyFailure(checkName string) (FailurePattern, bool) {
	lower := strings.ToLower(checkName)
	for _, fk := range failureKeywords {
		if strings.Contains(lower, fk.keyword) {
			return fk.pattern, true
		}
	}
	return "", false
}

func (p FailurePattern) Priority() string {
	switch p {
	case PatternSecurityIssue:
		return "critical"
	case PatternTestFailure, PatternBuildFailure:
		return "high"
	case PatternLintingError, PatternTypeError:
		return "medium"
	default:
		return "low"
	}
}

// Remediation is a prioritized follow-up for one failing check.
type Remediation struct {
	Check       string         `json:"check"`
	Pattern     FailurePattern `json:"pattern,omitempty"`
	Priority    string         `json:"priority"`
	Description string         `json:"description"`
}

// Remediations generates one prioritized entry per failing check, in
// check-name order so repeated runs emit identical output.
func Remediations(checks map[string]string) []Remediation {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Remediation
	for _, name := range names {
		switch checks[name] {
		case "failure", "error", "timed_out":
		default:
			continue
		}
		r := Remediation{Check: name, Priority: "low", Description: "investigate failing check " + name}
		if pattern, ok := ClassifyFailure(name); ok {
			r.Pattern = pattern
			r.Priority = pattern.Priority()
			r.Description = "fix " + string(pattern) + " reported by " + name
		}
		out = append(out, r)
	}
	return out
}
