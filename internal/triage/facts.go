package triage

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"prtriage/internal/ci"
	"prtriage/internal/decision"
	gh "prtriage/internal/github"
)

var (
	cvePattern     = regexp.MustCompile(`CVE-\d{4}-\d{4,}`)
	issueRefRe     = regexp.MustCompile(`(?i)\b(fixes|closes|resolves)\s+#\d+`)
	versionBumpRe  = regexp.MustCompile(`(?i)\bfrom\s+v?(\d+)[\w.\-]*\s+to\s+v?(\d+)`)
	breakingMarkRe = regexp.MustCompile(`^\w+(\(.+\))?!:`)
)

// buildFacts assembles the decision inputs for one PR from gateway data.
// The matrix itself stays I/O-free; all fetching happens here.
func (o *Orchestrator) buildFacts(ctx context.Context, rec *gh.PullRequestRecord) decision.Facts {
	f := decision.Facts{
		Number:       rec.Number,
		Title:        rec.Title,
		Author:       rec.Author,
		Labels:       rec.Labels,
		HasConflicts: rec.HasConflicts,
		TotalChanges: rec.TotalChanges(),
		FilesChanged: rec.ChangedFiles,
		IsDependabot: rec.IsDependabot,
	}

	f.CIStatus = overallToStatus(ci.OverallStatus(rec.CheckStatuses))
	f.SecurityScansStatus = securityScansStatus(rec.CheckStatuses, o.policy.CriticalChecks)
	f.HasRegressions = hasRegressionFailure(rec.CheckStatuses)

	text := rec.Title + "\n" + rec.Body
	f.VulnerabilitiesFixed = dedupe(cvePattern.FindAllString(text, -1))
	f.IsSecurityUpdate = rec.IsSecurity || len(f.VulnerabilitiesFixed) > 0 ||
		strings.Contains(strings.ToLower(rec.Title), "security")
	f.IsMajorVersionBump = isMajorVersionBump(rec.Title)
	f.FixesIssue = issueRefRe.MatchString(text)
	f.HasBreakingChanges = hasBreakingChanges(rec)

	files := o.gw.GetFiles(ctx, rec.Number)
	if f.FilesChanged == 0 {
		f.FilesChanged = len(files)
	}
	for _, file := range files {
		name := strings.ToLower(file.Filename)
		if strings.Contains(name, "_test.") || strings.Contains(name, ".test.") ||
			strings.HasPrefix(name, "test/") || strings.HasPrefix(name, "tests/") ||
			strings.Contains(name, ".spec.") {
			f.HasTests = true
		}
		if strings.HasSuffix(name, ".md") || strings.HasPrefix(name, "docs/") {
			f.HasDocumentation = true
		}
	}

	for _, rv := range o.gw.GetReviews(ctx, rec.Number) {
		if strings.EqualFold(rv.State, "APPROVED") {
			f.ReviewCount++
		}
	}

	return f
}

func overallToStatus(o ci.Overall) string {
	switch o {
	case ci.OverallSuccess:
		return "success"
	case ci.OverallFailure:
		return "failing"
	default:
		return string(o)
	}
}

// securityScansStatus reduces the configured critical checks: any failure
// wins, then any still-running status, then passed. Absent checks read as
// no signal.
func securityScansStatus(checks map[string]string, criticalNames []string) string {
	if len(criticalNames) == 0 {
		criticalNames = []string{"security"}
	}
	inFlight := ""
	passed := false
	for _, rc := range ci.RequiredCheckStatus(checks, criticalNames) {
		switch rc.Status {
		case "failure", "error", "timed_out":
			return "failed"
		case "success", "passed":
			passed = true
		case ci.StatusMissing:
		default:
			if inFlight == "" {
				inFlight = rc.Status
			}
		}
	}
	if inFlight != "" {
		return inFlight
	}
	if passed {
		return "passed"
	}
	return ""
}

func hasRegressionFailure(checks map[string]string) bool {
	for name, status := range checks {
		switch status {
		case "failure", "error", "timed_out":
			if strings.Contains(strings.ToLower(name), "regression") {
				return true
			}
		}
	}
	return false
}

func hasBreakingChanges(rec *gh.PullRequestRecord) bool {
	for _, l := range rec.Labels {
		if strings.Contains(strings.ToLower(l), "breaking") {
			return true
		}
	}
	if breakingMarkRe.MatchString(rec.Title) {
		return true
	}
	return strings.Contains(rec.Body, "BREAKING CHANGE")
}

// isMajorVersionBump parses dependabot-style "bump x from A to B" titles
// and compares the leading version components.
func isMajorVersionBump(title string) bool {
	m := versionBumpRe.FindStringSubmatch(title)
	if m == nil {
		return false
	}
	from, err1 := strconv.Atoi(m[1])
	to, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return false
	}
	return to > from
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
