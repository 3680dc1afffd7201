package etl

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/warehouse"
)

// ErrNoInput is returned by Extract when no input file yields usable rows.
var ErrNoInput = eris.New("etl: no usable input files")

// SkippedInput is an input file the extraction stage could not use. It is
// reported and never fatal.
type SkippedInput struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ExtractReport summarizes the extraction stage.
type ExtractReport struct {
	Files        []string       `json:"files"`
	Skipped      []SkippedInput `json:"skipped,omitempty"`
	RowsRead     int            `json:"rows_read"`
	ExpenseRows  int            `json:"expense_rows"`
	Malformed    int            `json:"malformed"`
	Inconsistent int            `json:"inconsistent"`
	Output       int            `json:"output"`
}

// EnrichReport summarizes the enrichment join.
type EnrichReport struct {
	Input         int `json:"input"`
	RegistryRows  int `json:"registry_rows"`
	Matched       int `json:"matched"`
	Unmatched     int `json:"unmatched"`
	DuplicateKeys int `json:"duplicate_keys"`
	Output        int `json:"output"`
}

// ValidateReport counts flag failures. Only MissingCNPJ rows are dropped.
type ValidateReport struct {
	Input         int `json:"input"`
	MissingCNPJ   int `json:"missing_cnpj"`
	InvalidCNPJ   int `json:"invalid_cnpj"`
	InvalidName   int `json:"invalid_name"`
	InvalidAmount int `json:"invalid_amount"`
	Output        int `json:"output"`
}

// AggregateReport summarizes grouping.
type AggregateReport struct {
	Input    int `json:"input"`
	Excluded int `json:"excluded"`
	Groups   int `json:"groups"`
}

// TableLoad is the outcome of one table write. A failed write carries Err
// and zero Rows; sibling writes are unaffected.
type TableLoad struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// LoadReport lists the per-table outcomes of the load stage.
type LoadReport struct {
	Mode   warehouse.Mode `json:"mode"`
	Tables []TableLoad    `json:"tables"`
}

// Failed reports whether any table write failed.
func (r LoadReport) Failed() bool {
	for _, t := range r.Tables {
		if t.Err != nil {
			return true
		}
	}
	return false
}

// Report is the full run report recorded in the run log.
type Report struct {
	Extract   *ExtractReport   `json:"extract,omitempty"`
	Enrich    *EnrichReport    `json:"enrich,omitempty"`
	Validate  *ValidateReport  `json:"validate,omitempty"`
	Aggregate *AggregateReport `json:"aggregate,omitempty"`
	Load      *LoadReport      `json:"load,omitempty"`
}
