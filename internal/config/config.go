package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-derived settings shared by the CLI and the server.
type Config struct {
	Port          string
	AllowedOrigin string
	// Database
	DatabaseURL string
	// GitHub auth
	GitHubToken        string
	GitHubTokenCommand string
	GitHubAPIBase      string
	// Default repository when the policy file does not name one
	DefaultRepo string
	Verbose     bool
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:               getEnvDefault("PORT", "8080"),
		AllowedOrigin:      getEnvDefault("ALLOWED_ORIGIN", "*"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubTokenCommand: os.Getenv("GITHUB_TOKEN_COMMAND"),
		GitHubAPIBase:      getEnvDefault("GITHUB_API_BASE", "https://api.github.com"),
		DefaultRepo:        os.Getenv("GITHUB_REPOSITORY"),
		Verbose:            getEnvBoolDefault("TRIAGE_VERBOSE", false),
	}
}

// Policy is the YAML triage-policy file: which checks matter, how strict each
// PR type is, and how the gateway paces itself against the API.
type Policy struct {
	Repository     string         `yaml:"repository"`
	RequiredChecks []string       `yaml:"required_checks"`
	CriticalChecks []string       `yaml:"critical_checks"`
	Thresholds     map[string]int `yaml:"thresholds"`
	MergeMethod    string         `yaml:"merge_method"`
	StaleAfterDays int            `yaml:"stale_after_days"`
	MaxPRsPerRun   int            `yaml:"max_prs_per_run"`
	Retry          RetrySettings  `yaml:"retry"`
	Poll           PollSettings   `yaml:"poll"`
}

type RetrySettings struct {
	MaxAttempts        int `yaml:"max_attempts"`
	BaseDelayMillis    int `yaml:"base_delay_ms"`
	RateLimitWaitSecs  int `yaml:"rate_limit_wait_secs"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
}

type PollSettings struct {
	IntervalSecs int `yaml:"interval_secs"`
	TimeoutSecs  int `yaml:"timeout_secs"`
}

func DefaultPolicy() Policy {
	return Policy{
		RequiredChecks: []string{"test", "build"},
		CriticalChecks: []string{"security"},
		MergeMethod:    "squash",
		StaleAfterDays: 14,
		Retry: RetrySettings{
			MaxAttempts:        3,
			BaseDelayMillis:    1000,
			RateLimitWaitSecs:  60,
			RequestTimeoutSecs: 20,
		},
		Poll: PollSettings{
			IntervalSecs: 30,
			TimeoutSecs:  600,
		},
	}
}

// LoadPolicy reads a YAML policy file and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.Repository == "" {
		return fmt.Errorf("policy: repository is required (owner/name)")
	}
	parts := strings.Split(p.Repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("policy: repository must be owner/name, got %q", p.Repository)
	}
	if p.Retry.MaxAttempts < 1 {
		return fmt.Errorf("policy: retry.max_attempts must be at least 1")
	}
	for typ, th := range p.Thresholds {
		if th < 0 || th > 100 {
			return fmt.Errorf("policy: threshold for %s out of range: %d", typ, th)
		}
	}
	return nil
}

func (p Policy) PollInterval() time.Duration {
	return time.Duration(p.Poll.IntervalSecs) * time.Second
}

func (p Policy) PollTimeout() time.Duration {
	return time.Duration(p.Poll.TimeoutSecs) * time.Second
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}
