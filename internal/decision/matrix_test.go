package decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dependabotFacts() Facts {
	return Facts{
		Number:       41,
		Title:        "Bump lodash from 4.17.20 to 4.17.21",
		IsDependabot: true,
		CIStatus:     "success",
		TotalChanges: 50,
	}
}

func TestEvaluateDependabotScenario(t *testing.T) {
	// ci_passing(30) + no_major_version(20) + no_conflicts(15) + small_change(10) = 75
	ev := NewMatrix(nil).Evaluate(dependabotFacts())

	assert.Equal(t, TypeDependabot, ev.Type)
	assert.Equal(t, 75, ev.Score)
	assert.Equal(t, 100, ev.MaxScore)
	assert.InDelta(t, 75.0, ev.Confidence, 0.001)
	// 75 >= 0.8*80 but below the threshold of 80
	assert.Equal(t, VerdictReadyForMerge, ev.Decision)
	assert.Empty(t, ev.Reasons)
}

func TestEvaluateSecurityScenario(t *testing.T) {
	ev := NewMatrix(nil).Evaluate(Facts{
		Number:               7,
		Title:                "Patch SSRF in webhook handler",
		CIStatus:             "success",
		VulnerabilitiesFixed: []string{"CVE-2024-1234"},
		SecurityScansStatus:  "passed",
	})

	assert.Equal(t, TypeSecurity, ev.Type)
	assert.Equal(t, 100, ev.Score)
	assert.InDelta(t, 100.0, ev.Confidence, 0.001)
	assert.Equal(t, VerdictAutoMerge, ev.Decision)
}

func TestEvaluateFeatureBlockedByFailingCI(t *testing.T) {
	ev := NewMatrix(nil).Evaluate(Facts{
		Number:       12,
		Title:        "feat: add export endpoint",
		CIStatus:     "failing",
		HasTests:     true,
		ReviewCount:  2,
		FilesChanged: 10,
	})

	assert.Equal(t, TypeFeature, ev.Type)
	// other factors still score: has_tests(25) + code_reviewed(25) + manageable_size(15)
	assert.Equal(t, 65, ev.Score)
	assert.Equal(t, VerdictBlocked, ev.Decision, "unmet required factor blocks regardless of score")
	require.NotEmpty(t, ev.Reasons)
	assert.Contains(t, ev.Reasons[0], "ci_passing")
}

func TestRequiredFactorAlwaysBlocks(t *testing.T) {
	f := dependabotFacts()
	f.IsSecurityUpdate = true // push the score to 100
	f.HasConflicts = true     // but violate a required factor

	ev := NewMatrix(nil).Evaluate(f)
	assert.Equal(t, VerdictBlocked, ev.Decision)
	for _, a := range ev.Actions {
		if a.Type == "fix" {
			assert.Equal(t, "critical", a.Priority)
		}
	}
}

func TestConfidenceIdentity(t *testing.T) {
	m := NewMatrix(nil)
	for _, f := range []Facts{
		dependabotFacts(),
		{Title: "feat: x", CIStatus: "success"},
		{Title: "fix: y", CIStatus: "pending", HasTests: true},
		{Title: "misc", FixesIssue: true},
	} {
		ev := m.Evaluate(f)
		assert.InDelta(t, float64(ev.Score)*100/float64(ev.MaxScore), ev.Confidence, 0.0001)
	}
}

// Flipping any single non-required factor from unmet to met must never
// decrease score, confidence, or the verdict's rank.
func TestMonotonicity(t *testing.T) {
	m := NewMatrix(nil)

	base := Facts{
		Number:       3,
		Title:        "Bump serde from 1.0.0 to 1.0.1",
		IsDependabot: true,
		CIStatus:     "success",
		TotalChanges: 500, // small_change unmet
	}
	before := m.Evaluate(base)

	flips := []func(Facts) Facts{
		func(f Facts) Facts { f.TotalChanges = 10; return f },       // small_change
		func(f Facts) Facts { f.IsSecurityUpdate = true; return f }, // security_update
	}
	for i, flip := range flips {
		after := m.Evaluate(flip(base))
		assert.GreaterOrEqual(t, after.Score, before.Score, "flip %d", i)
		assert.GreaterOrEqual(t, after.Confidence, before.Confidence, "flip %d", i)
		assert.GreaterOrEqual(t, after.Decision.Rank(), before.Decision.Rank(), "flip %d", i)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	m := NewMatrix(nil)
	f := Facts{
		Number:      5,
		Title:       "fix: race in poller",
		CIStatus:    "success",
		HasTests:    true,
		FixesIssue:  true,
		ReviewCount: 1,
	}

	a, err := json.Marshal(m.Evaluate(f))
	require.NoError(t, err)
	b, err := json.Marshal(m.Evaluate(f))
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical inputs must produce byte-identical evaluations")
}

func TestUnrecognizedTypeUsesBugfixRules(t *testing.T) {
	ev := NewMatrix(nil).Evaluate(Facts{
		Number:   9,
		Title:    "assorted changes",
		CIStatus: "success",
	})
	assert.Equal(t, TypeOther, ev.Type)
	// bugfix rules: ci_passing(30) + no_regressions(20) met
	assert.Equal(t, 50, ev.Score)
	assert.Equal(t, VerdictManualReview, ev.Decision)
}

func TestThresholdOverrides(t *testing.T) {
	// Lowering the dependabot threshold to 70 turns scenario A into auto-merge.
	ev := NewMatrix(map[string]int{"dependabot": 70}).Evaluate(dependabotFacts())
	assert.Equal(t, 75, ev.Score)
	assert.Equal(t, VerdictAutoMerge, ev.Decision)
}

func TestDecisionLadder(t *testing.T) {
	m := NewMatrix(nil)
	// bugfix threshold 85: bands at 85, 68, 51
	tests := []struct {
		name string
		f    Facts
		want Verdict
	}{
		{
			"all factors met",
			Facts{Title: "fix: a", CIStatus: "success", HasTests: true, FixesIssue: true},
			VerdictAutoMerge, // 100
		},
		{
			"missing linked issue",
			Facts{Title: "fix: b", CIStatus: "success", HasTests: true},
			VerdictReadyForMerge, // 75 >= 68
		},
		{
			"tests only",
			Facts{Title: "fix: c", CIStatus: "success", HasTests: true, HasRegressions: true},
			VerdictBlocked, // required no_regressions unmet
		},
		{
			"bare pass",
			Facts{Title: "fix: d", CIStatus: "success"},
			VerdictManualReview, // 50 < 51
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Evaluate(tt.f).Decision)
		})
	}
}

func TestEvaluateBatch(t *testing.T) {
	m := NewMatrix(nil)
	res := m.EvaluateBatch([]Facts{
		{Number: 1, Title: "fix: a", CIStatus: "success", HasTests: true, FixesIssue: true}, // auto_merge
		{Number: 2, Title: "fix: b", CIStatus: "failing"},                                   // blocked
		{Number: 3, Title: "fix: c", CIStatus: "success", HasTests: true},                   // ready_for_merge
	})

	assert.Equal(t, []int{1}, res.ByDecision[VerdictAutoMerge])
	assert.Equal(t, []int{2}, res.ByDecision[VerdictBlocked])
	assert.Equal(t, []int{3}, res.ByDecision[VerdictReadyForMerge])

	typesSeen := map[string]bool{}
	for _, a := range res.Recommendations {
		typesSeen[a.Type] = true
	}
	assert.True(t, typesSeen["batch_merge"])
	assert.True(t, typesSeen["fix_blockers"])
	assert.True(t, typesSeen["quick_review"])
}
