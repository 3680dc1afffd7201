package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ans-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Amounts are stored
// as decimal TEXT and dates as "2006-01-02" TEXT.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS dim_companies (
	ans_id       INTEGER PRIMARY KEY,
	cnpj         TEXT NOT NULL,
	company_name TEXT,
	modality     TEXT,
	state        TEXT
);

CREATE INDEX IF NOT EXISTS idx_dim_companies_cnpj ON dim_companies(cnpj);

CREATE TABLE IF NOT EXISTS fact_expenses (
	ans_id         INTEGER NOT NULL REFERENCES dim_companies(ans_id),
	reference_date TEXT NOT NULL,
	quarter        INTEGER NOT NULL CHECK (quarter BETWEEN 1 AND 4),
	year           INTEGER NOT NULL,
	amount         TEXT NOT NULL,
	PRIMARY KEY (ans_id, reference_date)
);

CREATE TABLE IF NOT EXISTS aggregated_data (
	company_name  TEXT NOT NULL,
	state         TEXT NOT NULL,
	total_amount  TEXT NOT NULL,
	avg_amount    TEXT NOT NULL,
	stddev_amount TEXT,
	PRIMARY KEY (company_name, state)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	report       TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Writes

const (
	sqliteInsertCompany = `INSERT INTO dim_companies (ans_id, cnpj, company_name, modality, state) VALUES (?, ?, ?, ?, ?)`
	sqliteUpsertCompany = sqliteInsertCompany + ` ON CONFLICT(ans_id) DO UPDATE SET
		cnpj = excluded.cnpj, company_name = excluded.company_name,
		modality = excluded.modality, state = excluded.state`

	sqliteInsertExpense = `INSERT INTO fact_expenses (ans_id, reference_date, quarter, year, amount) VALUES (?, ?, ?, ?, ?)`
	sqliteUpsertExpense = sqliteInsertExpense + ` ON CONFLICT(ans_id, reference_date) DO UPDATE SET
		quarter = excluded.quarter, year = excluded.year, amount = excluded.amount`

	sqliteInsertAggregate = `INSERT INTO aggregated_data (company_name, state, total_amount, avg_amount, stddev_amount) VALUES (?, ?, ?, ?, ?)`
	sqliteUpsertAggregate = sqliteInsertAggregate + ` ON CONFLICT(company_name, state) DO UPDATE SET
		total_amount = excluded.total_amount, avg_amount = excluded.avg_amount,
		stddev_amount = excluded.stddev_amount`
)

func (s *SQLiteStore) WriteCompanies(ctx context.Context, companies []model.Company, mode Mode) (int64, error) {
	stmt := sqliteInsertCompany
	if mode == ModeUpsert {
		companies = collapseCompanies(companies)
		stmt = sqliteUpsertCompany
	}
	rows := make([][]any, len(companies))
	for i, c := range companies {
		rows[i] = []any{c.RegistryID, c.CNPJ, nullIfEmpty(c.LegalName), nullIfEmpty(c.Modality), nullIfEmpty(c.State)}
	}
	return s.writeBatch(ctx, TableCompanies, stmt, rows)
}

func (s *SQLiteStore) WriteExpenses(ctx context.Context, expenses []model.Expense, mode Mode) (int64, error) {
	stmt := sqliteInsertExpense
	if mode == ModeUpsert {
		expenses = collapseExpenses(expenses)
		stmt = sqliteUpsertExpense
	}
	rows := make([][]any, len(expenses))
	for i, e := range expenses {
		rows[i] = []any{e.RegistryID, e.ReferenceDate().Format(dateLayout), e.Quarter, e.Year, e.Amount.String()}
	}
	return s.writeBatch(ctx, TableExpenses, stmt, rows)
}

func (s *SQLiteStore) WriteAggregates(ctx context.Context, stats []model.AggregatedStat, mode Mode) (int64, error) {
	stmt := sqliteInsertAggregate
	if mode == ModeUpsert {
		stats = collapseAggregates(stats)
		stmt = sqliteUpsertAggregate
	}
	rows := make([][]any, len(stats))
	for i, st := range stats {
		var stddev any
		if st.StdDev.Valid {
			stddev = st.StdDev.Decimal.StringFixed(2)
		}
		rows[i] = []any{st.CompanyName, st.State, st.Total.StringFixed(2), st.Average.StringFixed(2), stddev}
	}
	return s.writeBatch(ctx, TableAggregates, stmt, rows)
}

// writeBatch executes stmt once per row inside a single transaction.
func (s *SQLiteStore) writeBatch(ctx context.Context, table, stmt string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s", table)
	}
	defer prepared.Close() //nolint:errcheck

	for i, args := range rows {
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: write %s row %d", table, i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", table)
	}
	return int64(len(rows)), nil
}

// Reads

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, int, error) {
	where := ""
	var args []any
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		where = ` WHERE cnpj LIKE ? ESCAPE '\' OR company_name LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM dim_companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count companies")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ans_id, cnpj, COALESCE(company_name, ''), COALESCE(modality, ''), COALESCE(state, '')
		 FROM dim_companies`+where+` ORDER BY ans_id LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	companies := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.RegistryID, &c.CNPJ, &c.LegalName, &c.Modality, &c.State); err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, c)
	}
	return companies, total, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, cnpj string) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT ans_id, cnpj, COALESCE(company_name, ''), COALESCE(modality, ''), COALESCE(state, '')
		 FROM dim_companies WHERE cnpj = ? ORDER BY ans_id LIMIT 1`,
		cnpj,
	).Scan(&c.RegistryID, &c.CNPJ, &c.LegalName, &c.Modality, &c.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", cnpj)
	}
	return &c, nil
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, cnpj string) ([]model.StoredExpense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.ans_id, e.reference_date, e.quarter, e.year, e.amount
		 FROM fact_expenses e JOIN dim_companies c ON c.ans_id = e.ans_id
		 WHERE c.cnpj = ?
		 ORDER BY e.reference_date, e.ans_id`,
		cnpj,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list expenses %s", cnpj)
	}
	defer rows.Close() //nolint:errcheck

	expenses := []model.StoredExpense{}
	for rows.Next() {
		var (
			e   model.StoredExpense
			ref string
		)
		if err := rows.Scan(&e.RegistryID, &ref, &e.Quarter, &e.Year, &e.Amount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan expense")
		}
		if e.ReferenceDate, err = time.Parse(dateLayout, ref); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse reference date %q", ref)
		}
		expenses = append(expenses, e)
	}
	return expenses, eris.Wrap(rows.Err(), "sqlite: list expenses iterate")
}

func (s *SQLiteStore) ListAggregates(ctx context.Context) ([]model.AggregatedStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_name, state, total_amount, avg_amount, stddev_amount FROM aggregated_data`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aggregates")
	}
	defer rows.Close() //nolint:errcheck

	stats := []model.AggregatedStat{}
	for rows.Next() {
		var st model.AggregatedStat
		if err := rows.Scan(&st.CompanyName, &st.State, &st.Total, &st.Average, &st.StdDev); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan aggregate")
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list aggregates iterate")
	}
	sortAggregates(stats)
	return stats, nil
}

// Run log

func (s *SQLiteStore) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: start run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report any) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, report, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, report any, errMsg string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, report, errMsg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, report any, errMsg string) error {
	reportJSON, err := marshalReport(report)
	if err != nil {
		return err
	}
	var reportText any
	if reportJSON != nil {
		reportText = string(reportJSON)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, report = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), reportText, nullIfEmpty(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, completed_at, report, error FROM pipeline_runs WHERE id = ?`,
		runID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, report, error
		 FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		completedAt sql.NullTime
		report      sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&r.ID, &status, &r.StartedAt, &completedAt, &report, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.Error = errMsg.String
	if report.Valid {
		if err := json.Unmarshal([]byte(report.String), &r.Report); err != nil {
			return nil, eris.Wrap(err, "unmarshal report")
		}
	}
	return &r, nil
}

// sortAggregates orders by total descending, then name and state. Totals are
// TEXT in SQLite so the ordering is done on the decoded decimals.
func sortAggregates(stats []model.AggregatedStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		if a.CompanyName != b.CompanyName {
			return a.CompanyName < b.CompanyName
		}
		return a.State < b.State
	})
}
