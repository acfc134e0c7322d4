package github

import (
	"context"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ResolveToken finds a GitHub token: explicit value first, then the
// GITHUB_TOKEN environment variable (already read into config), then an
// external credential-helper command. A missing token is not an error;
// requests simply go out unauthenticated and rate-limited.
func ResolveToken(explicit, helperCommand string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if helperCommand == "" {
		return ""
	}
	out, err := exec.Command("sh", "-c", helperCommand).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// newHTTPClient builds the gateway's HTTP client. With a token the client
// carries it as an oauth2 static token source; without one it is a plain
// client with the same timeout.
func newHTTPClient(token string, timeout time.Duration) *http.Client {
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	c := oauth2.NewClient(context.Background(), src)
	c.Timeout = timeout
	return c
}
