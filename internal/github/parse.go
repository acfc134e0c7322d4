package github

import (
	"encoding/json"
	"fmt"
)

// ParseError wraps a malformed or non-JSON API response body.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parseBody decodes b into T. Callers branch on the error instead of
// letting decode failures escape as control flow.
func parseBody[T any](path string, b []byte) (T, error) {
	var out T
	if len(b) == 0 {
		return out, &ParseError{Path: path, Err: fmt.Errorf("empty body")}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, &ParseError{Path: path, Err: err}
	}
	return out, nil
}
