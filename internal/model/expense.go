package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is one consolidated quarterly expense line of an operator.
// After extraction Amount is always positive.
type Expense struct {
	RegistryID int64           `json:"ans_id"`
	Quarter    int             `json:"quarter"`
	Year       int             `json:"year"`
	Amount     decimal.Decimal `json:"amount"`
}

// ReferenceDate maps the quarter onto the first day of its first month
// (Q1 → Jan 1, Q2 → Apr 1, Q3 → Jul 1, Q4 → Oct 1).
func (e Expense) ReferenceDate() time.Time {
	return time.Date(e.Year, time.Month((e.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// EnrichedExpense is an Expense left-joined with its registry entry.
// When Matched is false the company fields are empty.
type EnrichedExpense struct {
	Expense
	CNPJ      string `json:"cnpj"`
	LegalName string `json:"company_name"`
	Modality  string `json:"modality"`
	State     string `json:"state"`
	Matched   bool   `json:"-"`
}

// Company projects the registry columns of the row.
func (e EnrichedExpense) Company() Company {
	return Company{
		RegistryID: e.RegistryID,
		CNPJ:       e.CNPJ,
		LegalName:  e.LegalName,
		Modality:   e.Modality,
		State:      e.State,
	}
}

// ValidatedExpense carries the data-quality flags computed for a row.
// Flags are informational and never used to drop rows.
type ValidatedExpense struct {
	EnrichedExpense
	CNPJValid   bool `json:"cnpj_valid"`
	NameValid   bool `json:"name_valid"`
	AmountValid bool `json:"amount_valid"`
}

// StoredExpense is a fact_expenses row as read back from the warehouse.
type StoredExpense struct {
	RegistryID    int64           `json:"ans_id"`
	ReferenceDate time.Time       `json:"reference_date"`
	Quarter       int             `json:"quarter"`
	Year          int             `json:"year"`
	Amount        decimal.Decimal `json:"amount"`
}
