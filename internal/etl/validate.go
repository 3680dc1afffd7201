package etl

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ans-cli/internal/etl/transform"
	"github.com/sells-group/ans-cli/internal/model"
)

// ValidName reports whether a legal name is present.
func ValidName(name string) bool {
	return strings.TrimSpace(name) != ""
}

// ValidAmount reports whether an amount is strictly positive.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive()
}

// Validate normalizes each row's CNPJ and attaches the three quality flags.
// Rows without any CNPJ digits (no registry match) are dropped and counted
// as MissingCNPJ; flag failures never drop a row.
func Validate(rows []model.EnrichedExpense) ([]model.ValidatedExpense, ValidateReport) {
	report := ValidateReport{Input: len(rows)}
	out := make([]model.ValidatedExpense, 0, len(rows))
	for _, r := range rows {
		cnpj := transform.NormalizeCNPJ(r.CNPJ)
		if cnpj == "" {
			report.MissingCNPJ++
			continue
		}
		r.CNPJ = cnpj

		v := model.ValidatedExpense{
			EnrichedExpense: r,
			CNPJValid:       transform.ValidateCNPJ(cnpj),
			NameValid:       ValidName(r.LegalName),
			AmountValid:     ValidAmount(r.Amount),
		}
		if !v.CNPJValid {
			report.InvalidCNPJ++
		}
		if !v.NameValid {
			report.InvalidName++
		}
		if !v.AmountValid {
			report.InvalidAmount++
		}
		out = append(out, v)
	}
	report.Output = len(out)
	return out, report
}
