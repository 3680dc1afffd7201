// Package warehouse persists the pipeline output into the relational schema
// (dim_companies, fact_expenses, aggregated_data) and serves the read paths
// of the query API. Postgres and SQLite backends share one interface.
package warehouse

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/model"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = eris.New("warehouse: not found")

// Mode selects how rows are written.
type Mode string

const (
	// ModeAppend inserts rows as-is; existing keys make the write fail.
	ModeAppend Mode = "append"
	// ModeUpsert inserts or replaces by primary key. Repeated keys inside
	// one batch collapse to the last occurrence.
	ModeUpsert Mode = "upsert"
)

// ParseMode converts "append" or "upsert" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAppend, "":
		return ModeAppend, nil
	case ModeUpsert:
		return ModeUpsert, nil
	default:
		return "", eris.Errorf("unknown load mode: %q (valid: append, upsert)", s)
	}
}

// Table names.
const (
	TableCompanies  = "dim_companies"
	TableExpenses   = "fact_expenses"
	TableAggregates = "aggregated_data"
	TableRuns       = "pipeline_runs"
)

// CompanyFilter selects a page of companies. Search matches a substring of
// the CNPJ or the legal name, case-insensitively.
type CompanyFilter struct {
	Search string
	Limit  int
	Offset int
}

// RunFilter selects pipeline runs, newest first. Zero fields match all runs;
// Limit defaults to 20.
type RunFilter struct {
	Status model.RunStatus
	Since  time.Time
	Limit  int
}

// Reader is the read side used by the query API.
type Reader interface {
	// ListCompanies returns one page of companies ordered by registry id and
	// the total number of companies matching the filter.
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, int, error)
	// GetCompany returns the company with the given CNPJ or ErrNotFound.
	GetCompany(ctx context.Context, cnpj string) (*model.Company, error)
	// ListExpenses returns the expenses of the companies with the given
	// CNPJ, oldest first. Empty when the CNPJ is unknown.
	ListExpenses(ctx context.Context, cnpj string) ([]model.StoredExpense, error)
	// ListAggregates returns all aggregated rows by total descending.
	ListAggregates(ctx context.Context) ([]model.AggregatedStat, error)
}

// Writer is the write side used by the load stage. Each call is atomic: on
// error nothing from that batch is persisted.
type Writer interface {
	WriteCompanies(ctx context.Context, companies []model.Company, mode Mode) (int64, error)
	WriteExpenses(ctx context.Context, expenses []model.Expense, mode Mode) (int64, error)
	WriteAggregates(ctx context.Context, stats []model.AggregatedStat, mode Mode) (int64, error)
}

// RunLog records pipeline executions.
type RunLog interface {
	StartRun(ctx context.Context) (string, error)
	CompleteRun(ctx context.Context, runID string, report any) error
	FailRun(ctx context.Context, runID string, report any, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
}

// Store combines every warehouse capability with lifecycle management.
type Store interface {
	Reader
	Writer
	RunLog

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

type expenseKey struct {
	id   int64
	date string
}

// collapseExpenses keeps the last expense per (registry id, reference date).
func collapseExpenses(expenses []model.Expense) []model.Expense {
	return collapseLast(expenses, func(e model.Expense) expenseKey {
		return expenseKey{id: e.RegistryID, date: e.ReferenceDate().Format(dateLayout)}
	})
}

// collapseCompanies keeps the last company per registry id.
func collapseCompanies(companies []model.Company) []model.Company {
	return collapseLast(companies, func(c model.Company) int64 { return c.RegistryID })
}

type aggregateKey struct {
	name  string
	state string
}

// collapseAggregates keeps the last row per (company name, state).
func collapseAggregates(stats []model.AggregatedStat) []model.AggregatedStat {
	return collapseLast(stats, func(s model.AggregatedStat) aggregateKey {
		return aggregateKey{name: s.CompanyName, state: s.State}
	})
}

// collapseLast removes earlier duplicates by key. The surviving rows keep the
// position of their last occurrence.
func collapseLast[T any, K comparable](rows []T, key func(T) K) []T {
	last := make(map[K]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]T, 0, len(last))
	for i, r := range rows {
		if last[key(r)] == i {
			out = append(out, r)
		}
	}
	return out
}

const dateLayout = "2006-01-02"

// likePattern escapes LIKE wildcards in s and wraps it for substring search.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// nullIfEmpty maps "" to SQL NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
