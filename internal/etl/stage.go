// Package etl implements the ANS expense pipeline: extraction of quarterly
// ledger extracts, enrichment against the operator registry, CNPJ
// validation, per-company aggregation and load into the warehouse.
//
// Each stage is a function over explicit inputs returning its output table
// and a report. Pipeline composes them and persists the intermediate CSV
// artifacts so any stage can be re-run from the previous one's output.
package etl

import (
	"github.com/rotisserie/eris"
)

// Stage identifies one step of the pipeline.
type Stage int

const (
	StageExtract Stage = iota + 1
	StageEnrich
	StageValidate
	StageAggregate
	StageLoad
)

// String returns the stage name used on the command line.
func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageEnrich:
		return "enrich"
	case StageValidate:
		return "validate"
	case StageAggregate:
		return "aggregate"
	case StageLoad:
		return "load"
	default:
		return "unknown"
	}
}

// ParseStage converts a stage name into a Stage.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "extract":
		return StageExtract, nil
	case "enrich":
		return StageEnrich, nil
	case "validate":
		return StageValidate, nil
	case "aggregate":
		return StageAggregate, nil
	case "load":
		return StageLoad, nil
	default:
		return 0, eris.Errorf("unknown stage: %q (valid: extract, enrich, validate, aggregate, load)", s)
	}
}
