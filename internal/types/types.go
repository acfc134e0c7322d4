package types

import (
	"prtriage/internal/decision"
	"prtriage/internal/store"
	"prtriage/internal/triage"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type TriageResponse struct {
	Run *triage.Run `json:"run"`
}

type RunListResponse struct {
	Runs     []*triage.Run     `json:"runs"`
	Archived []store.StoredRun `json:"archived,omitempty"`
}

type EvaluationResponse struct {
	Evaluation *decision.Evaluation `json:"evaluation"`
}
