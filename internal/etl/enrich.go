package etl

import (
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

// Enrich left-joins expenses with the registry on registry id. Every expense
// is kept: unmatched rows carry empty company fields. A registry id that
// appears k times yields k output rows per matching expense.
func Enrich(expenses []model.Expense, companies []model.Company) ([]model.EnrichedExpense, EnrichReport) {
	byID := make(map[int64][]model.Company, len(companies))
	for _, c := range companies {
		byID[c.RegistryID] = append(byID[c.RegistryID], c)
	}

	report := EnrichReport{Input: len(expenses), RegistryRows: len(companies)}
	for _, cs := range byID {
		if len(cs) > 1 {
			report.DuplicateKeys++
		}
	}

	out := make([]model.EnrichedExpense, 0, len(expenses))
	for _, e := range expenses {
		matches := byID[e.RegistryID]
		if len(matches) == 0 {
			report.Unmatched++
			out = append(out, model.EnrichedExpense{Expense: e})
			continue
		}
		report.Matched++
		for _, c := range matches {
			out = append(out, model.EnrichedExpense{
				Expense:   e,
				CNPJ:      c.CNPJ,
				LegalName: c.LegalName,
				Modality:  c.Modality,
				State:     c.State,
				Matched:   true,
			})
		}
	}
	report.Output = len(out)

	if report.DuplicateKeys > 0 {
		zap.L().With(zap.String("component", "etl.enrich")).Warn("registry has duplicate keys; matching expenses are multiplied",
			zap.Int("duplicate_keys", report.DuplicateKeys),
		)
	}
	return out, report
}
