package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"prtriage/internal/db"
	"prtriage/internal/triage"
)

// RunArchive persists completed triage runs to Postgres. It sits next to
// the engine, not inside it: runs are written after the fact and the
// orchestrator never depends on what is stored here.
type RunArchive struct {
	db *db.DB
}

func NewRunArchive(database *db.DB) *RunArchive {
	return &RunArchive{db: database}
}

// StoredRun is the archive's listing row; the full run lives in payload.
type StoredRun struct {
	ID         int64          `json:"id"`
	Repository string         `json:"repository"`
	Mode       string         `json:"mode"`
	StartedAt  time.Time      `json:"startedAt"`
	Summary    triage.Summary `json:"summary"`
}

// SaveRun archives one completed run.
func (a *RunArchive) SaveRun(run *triage.Run) error {
	if run == nil {
		return fmt.Errorf("nil run")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = a.db.Exec(`
		INSERT INTO triage_runs
			(repository, mode, started_at, processed, merged, commented, skipped, errors, success_rate, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		run.Repository, string(run.Mode), run.StartedAt,
		run.Summary.Processed, run.Summary.Merged, run.Summary.Commented,
		run.Summary.Skipped, run.Summary.Errors, run.Summary.SuccessRate,
		payload,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// RecentRuns lists the newest archived runs for a repository.
func (a *RunArchive) RecentRuns(repository string, limit int) ([]StoredRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.Query(`
		SELECT id, repository, mode, started_at, processed, merged, commented, skipped, errors, success_rate
		FROM triage_runs
		WHERE repository = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []StoredRun
	for rows.Next() {
		var r StoredRun
		if err := rows.Scan(
			&r.ID, &r.Repository, &r.Mode, &r.StartedAt,
			&r.Summary.Processed, &r.Summary.Merged, &r.Summary.Commented,
			&r.Summary.Skipped, &r.Summary.Errors, &r.Summary.SuccessRate,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads one archived run in full.
func (a *RunArchive) GetRun(id int64) (*triage.Run, error) {
	var payload []byte
	err := a.db.QueryRow("SELECT payload FROM triage_runs WHERE id = $1", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	var run triage.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("parse archived run %d: %w", id, err)
	}
	return &run, nil
}
