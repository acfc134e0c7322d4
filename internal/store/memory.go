package store

import (
	"sync"

	"prtriage/internal/triage"
)

// MemoryRunStore keeps a bounded in-process history of triage runs so the
// server can answer "what happened lately" without a database. The
// orchestrator itself never reads from it.
type MemoryRunStore struct {
	mu      sync.RWMutex
	runs    []*triage.Run
	maxRuns int
}

func NewMemoryRunStore(maxRuns int) *MemoryRunStore {
	if maxRuns <= 0 {
		maxRuns = 50
	}
	return &MemoryRunStore{maxRuns: maxRuns}
}

func (s *MemoryRunStore) Append(run *triage.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if len(s.runs) > s.maxRuns {
		s.runs = s.runs[len(s.runs)-s.maxRuns:]
	}
}

// Latest returns the most recent run, or nil.
func (s *MemoryRunStore) Latest() *triage.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

// List returns runs newest-first.
func (s *MemoryRunStore) List() []*triage.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
	}
	return out
}
