package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicyEmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicyOverlaysDefaults(t *testing.T) {
	path := writePolicy(t, `
repository: octo/widgets
merge_method: merge
thresholds:
  dependabot: 70
retry:
  max_attempts: 5
poll:
  interval_secs: 10
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, "octo/widgets", p.Repository)
	assert.Equal(t, "merge", p.MergeMethod)
	assert.Equal(t, map[string]int{"dependabot": 70}, p.Thresholds)
	assert.Equal(t, 5, p.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.PollInterval())

	// settings the file does not mention keep their defaults
	assert.Equal(t, []string{"test", "build"}, p.RequiredChecks)
	assert.Equal(t, 14, p.StaleAfterDays)
	assert.Equal(t, 600, p.Poll.TimeoutSecs)
}

func TestLoadPolicyErrors(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "repository: [not, a, string"))
	assert.Error(t, err)
}

func TestPolicyValidate(t *testing.T) {
	valid := DefaultPolicy()
	valid.Repository = "octo/widgets"
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"missing repository", func(p *Policy) { p.Repository = "" }},
		{"repository without owner", func(p *Policy) { p.Repository = "/widgets" }},
		{"repository without name", func(p *Policy) { p.Repository = "octo/" }},
		{"repository with extra segment", func(p *Policy) { p.Repository = "a/b/c" }},
		{"zero retry attempts", func(p *Policy) { p.Retry.MaxAttempts = 0 }},
		{"threshold above 100", func(p *Policy) { p.Thresholds = map[string]int{"feature": 150} }},
		{"negative threshold", func(p *Policy) { p.Thresholds = map[string]int{"bugfix": -1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPOSITORY", "octo/widgets")
	t.Setenv("TRIAGE_VERBOSE", "yes")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, "octo/widgets", cfg.DefaultRepo)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIBase)
	assert.True(t, cfg.Verbose)
}
