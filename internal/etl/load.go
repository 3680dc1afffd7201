package etl

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
	"github.com/sells-group/ans-cli/internal/warehouse"
)

// Load writes the company dimension, the expense facts and the aggregated
// statistics. Each table write is independent: a failure is logged and
// recorded in the report with zero rows, and the remaining writes still run.
// Nothing is retried.
func Load(ctx context.Context, w warehouse.Writer, rows []model.ValidatedExpense, stats []model.AggregatedStat, mode warehouse.Mode) LoadReport {
	log := zap.L().With(zap.String("component", "etl.load"), zap.String("mode", string(mode)))
	if mode == warehouse.ModeAppend {
		log.Warn("append mode inserts rows as-is; re-running over a loaded warehouse violates primary keys")
	}

	companies := make([]model.Company, 0, len(rows))
	expenses := make([]model.Expense, 0, len(rows))
	for _, r := range rows {
		companies = append(companies, r.Company())
		expenses = append(expenses, r.Expense)
	}
	companies = model.DedupeCompanies(companies)

	report := LoadReport{Mode: mode}
	writes := []struct {
		table string
		write func() (int64, error)
	}{
		{warehouse.TableCompanies, func() (int64, error) { return w.WriteCompanies(ctx, companies, mode) }},
		{warehouse.TableExpenses, func() (int64, error) { return w.WriteExpenses(ctx, expenses, mode) }},
		{warehouse.TableAggregates, func() (int64, error) { return w.WriteAggregates(ctx, stats, mode) }},
	}
	for _, wr := range writes {
		n, err := wr.write()
		tl := TableLoad{Table: wr.table, Rows: n}
		if err != nil {
			log.Error("table write failed", zap.String("table", wr.table), zap.Error(err))
			tl = TableLoad{Table: wr.table, Err: err, Error: err.Error()}
		} else {
			log.Info("table loaded", zap.String("table", wr.table), zap.Int64("rows", n))
		}
		report.Tables = append(report.Tables, tl)
	}
	return report
}
