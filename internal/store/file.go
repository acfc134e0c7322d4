package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"prtriage/internal/triage"
)

// ResultsFile writes a run's machine-readable summary to disk (the CLI's
// --output target) and reads it back.
type ResultsFile struct {
	path string
}

func NewResultsFile(path string) *ResultsFile {
	return &ResultsFile{path: path}
}

// Write marshals the run as indented JSON via a temp-file rename so
// readers never observe a partial file.
func (f *ResultsFile) Write(run *triage.Run) error {
	if run == nil {
		return fmt.Errorf("nil run")
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Read returns the stored run, or nil when the file does not exist yet.
func (f *ResultsFile) Read() (*triage.Run, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var run triage.Run
	if err := json.Unmarshal(b, &run); err != nil {
		return nil, fmt.Errorf("parse results file %s: %w", f.path, err)
	}
	return &run, nil
}

// WriteReport writes the markdown report for a run.
func WriteReport(path string, run *triage.Run) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(triage.MarkdownReport(run)), 0o644)
}
