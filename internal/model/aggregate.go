package model

import "github.com/shopspring/decimal"

// AggregatedStat summarizes the expenses of one (company name, state) group.
// StdDev is invalid (null) for single-record groups.
type AggregatedStat struct {
	CompanyName string              `json:"company_name"`
	State       string              `json:"state"`
	Total       decimal.Decimal     `json:"total_amount"`
	Average     decimal.Decimal     `json:"avg_amount"`
	StdDev      decimal.NullDecimal `json:"stddev_amount"`
}
