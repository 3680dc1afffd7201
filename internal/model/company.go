package model

import (
	"time"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Company is one health-insurance operator from the ANS registry (CADOP).
// Empty strings stand for values missing in the source.
type Company struct {
	RegistryID int64  `json:"ans_id"`
	CNPJ       string `json:"cnpj"`
	LegalName  string `json:"company_name"`
	Modality   string `json:"modality"`
	State      string `json:"state"`
}

// DedupeCompanies drops repeated registry ids, keeping the first occurrence.
func DedupeCompanies(companies []Company) []Company {
	seen := make(map[int64]bool, len(companies))
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		if seen[c.RegistryID] {
			continue
		}
		seen[c.RegistryID] = true
		out = append(out, c)
	}
	return out
}

// Run represents a single pipeline execution recorded in the run log.
type Run struct {
	ID          string         `json:"id"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Report      map[string]any `json:"report,omitempty"`
	Error       string         `json:"error,omitempty"`
}
