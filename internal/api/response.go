package api

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

const dateLayout = "2006-01-02"

// CompanyResponse is one operator as served by the API. Fields missing in
// the registry are null.
type CompanyResponse struct {
	RegistryID int64   `json:"ans_id"`
	CNPJ       string  `json:"cnpj"`
	LegalName  *string `json:"company_name"`
	Modality   *string `json:"modality"`
	State      *string `json:"state"`
}

// ExpenseResponse is one fact_expenses row.
type ExpenseResponse struct {
	RegistryID    int64       `json:"ans_id"`
	Amount        json.Number `json:"amount"`
	Year          int         `json:"year"`
	Quarter       int         `json:"quarter"`
	ReferenceDate string      `json:"reference_date"`
}

// AggregateResponse is one aggregated_data row. StdDev is null for
// single-record groups.
type AggregateResponse struct {
	CompanyName string       `json:"company_name"`
	State       string       `json:"state"`
	Total       json.Number  `json:"total_amount"`
	Average     json.Number  `json:"avg_amount"`
	StdDev      *json.Number `json:"stddev_amount"`
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Page         int `json:"page"`
	Size         int `json:"size"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
}

// CompanyList is the paginated company listing.
type CompanyList struct {
	Data []CompanyResponse `json:"data"`
	Meta PageMeta          `json:"meta"`
}

// ErrorResponse carries a human-readable failure.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewPageMeta computes the page count as ceil(total/size), 0 when empty.
func NewPageMeta(page, size, total int) PageMeta {
	pages := 0
	if total > 0 && size > 0 {
		pages = (total + size - 1) / size
	}
	return PageMeta{Page: page, Size: size, TotalRecords: total, TotalPages: pages}
}

// FromCompany converts a warehouse company.
func FromCompany(c model.Company) CompanyResponse {
	return CompanyResponse{
		RegistryID: c.RegistryID,
		CNPJ:       c.CNPJ,
		LegalName:  optional(c.LegalName),
		Modality:   optional(c.Modality),
		State:      optional(c.State),
	}
}

// FromExpense converts a warehouse expense.
func FromExpense(e model.StoredExpense) ExpenseResponse {
	return ExpenseResponse{
		RegistryID:    e.RegistryID,
		Amount:        money(e.Amount),
		Year:          e.Year,
		Quarter:       e.Quarter,
		ReferenceDate: e.ReferenceDate.Format(dateLayout),
	}
}

// FromAggregate converts a warehouse aggregate.
func FromAggregate(s model.AggregatedStat) AggregateResponse {
	resp := AggregateResponse{
		CompanyName: s.CompanyName,
		State:       s.State,
		Total:       money(s.Total),
		Average:     money(s.Average),
	}
	if s.StdDev.Valid {
		sd := money(s.StdDev.Decimal)
		resp.StdDev = &sd
	}
	return resp
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
