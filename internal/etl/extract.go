package etl

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl/transform"
	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// Ledger columns of the ANS accounting-statement extracts.
const (
	ledgerDate     = "DATA"
	ledgerRegistry = "REG_ANS"
	ledgerAccount  = "CD_CONTA_CONTABIL"
	ledgerBalance  = "VL_SALDO_FINAL"
)

// DefaultExpenseAccount is the accounting code of "events/claims" expenses.
const DefaultExpenseAccount = "41"

// ExtractConfig configures the extraction stage.
type ExtractConfig struct {
	ExpenseAccount string // rows with any other CD_CONTA_CONTABIL are ignored
	Encoding       string // charset of the ledger files
}

// ledgerRow is one raw line of a quarterly ledger extract.
type ledgerRow struct {
	account  string
	date     string
	balance  string
	registry string
}

// ListLedgerFiles returns the *.csv files directly under dir, sorted by name.
func ListLedgerFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// QuarterFromFilename returns the quarter encoded as the leading digit of
// the file's base name ("1T2024.csv" → 1). Names not starting with a digit
// in 1..4 are rejected.
func QuarterFromFilename(name string) (int, error) {
	base := filepath.Base(name)
	if base == "" || base[0] < '0' || base[0] > '9' {
		return 0, eris.Errorf("extract: filename %q does not start with a quarter digit", base)
	}
	q := int(base[0] - '0')
	if q < 1 || q > 4 {
		return 0, eris.Errorf("extract: filename %q has quarter %d outside 1..4", base, q)
	}
	return q, nil
}

// Extract reads the quarterly ledger files, keeps the expense account rows
// and consolidates them. Rows with a non-positive amount are counted as
// inconsistent and excluded. Unusable files are reported in Skipped; when
// no file can be used ErrNoInput is returned.
func Extract(ctx context.Context, files []string, cfg ExtractConfig) ([]model.Expense, ExtractReport, error) {
	log := zap.L().With(zap.String("component", "etl.extract"))
	if cfg.ExpenseAccount == "" {
		cfg.ExpenseAccount = DefaultExpenseAccount
	}

	var (
		report   ExtractReport
		expenses []model.Expense
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, report, eris.Wrap(err, "extract: context cancelled")
		}

		quarter, err := QuarterFromFilename(file)
		if err != nil {
			log.Warn("skipping file", zap.String("file", file), zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedInput{File: file, Reason: err.Error()})
			continue
		}

		rows, err := readLedger(ctx, file, cfg.Encoding)
		if err != nil {
			log.Warn("skipping file", zap.String("file", file), zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedInput{File: file, Reason: err.Error()})
			continue
		}

		report.Files = append(report.Files, file)
		report.RowsRead += len(rows)
		before := len(expenses)
		for _, row := range rows {
			if row.account != cfg.ExpenseAccount {
				continue
			}
			report.ExpenseRows++

			exp, err := parseLedgerRow(row, quarter)
			if err != nil {
				report.Malformed++
				continue
			}
			if !exp.Amount.IsPositive() {
				report.Inconsistent++
				continue
			}
			expenses = append(expenses, exp)
		}
		log.Info("extracted file",
			zap.String("file", filepath.Base(file)),
			zap.Int("quarter", quarter),
			zap.Int("rows", len(rows)),
			zap.Int("expenses", len(expenses)-before),
		)
	}

	if len(report.Files) == 0 {
		return nil, report, ErrNoInput
	}

	report.Output = len(expenses)
	if report.Inconsistent > 0 {
		log.Warn("excluded inconsistent records (amount <= 0)", zap.Int("count", report.Inconsistent))
	}
	return expenses, report, nil
}

func readLedger(ctx context.Context, path, encoding string) ([]ledgerRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open")
	}
	defer f.Close() //nolint:errcheck

	header, records, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  ';',
		Encoding:   encoding,
		HasHeader:  true,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse")
	}

	idx, err := columnIndex(header, ledgerDate, ledgerRegistry, ledgerAccount, ledgerBalance)
	if err != nil {
		return nil, err
	}

	rows := make([]ledgerRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ledgerRow{
			account:  field(rec, idx[ledgerAccount]),
			date:     field(rec, idx[ledgerDate]),
			balance:  field(rec, idx[ledgerBalance]),
			registry: field(rec, idx[ledgerRegistry]),
		})
	}
	return rows, nil
}

func parseLedgerRow(row ledgerRow, quarter int) (model.Expense, error) {
	id, err := strconv.ParseInt(row.registry, 10, 64)
	if err != nil {
		return model.Expense{}, eris.Wrapf(err, "extract: registry id %q", row.registry)
	}
	date, err := transform.ParseLedgerDate(row.date)
	if err != nil {
		return model.Expense{}, err
	}
	amount, err := transform.ParseBRDecimal(row.balance)
	if err != nil {
		return model.Expense{}, err
	}
	return model.Expense{
		RegistryID: id,
		Quarter:    quarter,
		Year:       date.Year(),
		Amount:     amount,
	}, nil
}
