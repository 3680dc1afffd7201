package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/db"
	"github.com/sells-group/ans-cli/internal/model"
)

var (
	companyColumns   = []string{"ans_id", "cnpj", "company_name", "modality", "state"}
	expenseColumns   = []string{"ans_id", "reference_date", "quarter", "year", "amount"}
	aggregateColumns = []string{"company_name", "state", "total_amount", "avg_amount", "stddev_amount"}
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, typically a pgxmock pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Writes

func (s *PostgresStore) WriteCompanies(ctx context.Context, companies []model.Company, mode Mode) (int64, error) {
	if mode == ModeUpsert {
		companies = collapseCompanies(companies)
	}
	rows := make([][]any, len(companies))
	for i, c := range companies {
		rows[i] = []any{c.RegistryID, c.CNPJ, nullIfEmpty(c.LegalName), nullIfEmpty(c.Modality), nullIfEmpty(c.State)}
	}
	return s.write(ctx, TableCompanies, companyColumns, []string{"ans_id"}, rows, mode)
}

func (s *PostgresStore) WriteExpenses(ctx context.Context, expenses []model.Expense, mode Mode) (int64, error) {
	if mode == ModeUpsert {
		expenses = collapseExpenses(expenses)
	}
	rows := make([][]any, len(expenses))
	for i, e := range expenses {
		rows[i] = []any{e.RegistryID, e.ReferenceDate(), e.Quarter, e.Year, toNumeric(e.Amount)}
	}
	return s.write(ctx, TableExpenses, expenseColumns, []string{"ans_id", "reference_date"}, rows, mode)
}

func (s *PostgresStore) WriteAggregates(ctx context.Context, stats []model.AggregatedStat, mode Mode) (int64, error) {
	if mode == ModeUpsert {
		stats = collapseAggregates(stats)
	}
	rows := make([][]any, len(stats))
	for i, st := range stats {
		rows[i] = []any{st.CompanyName, st.State, toNumeric(st.Total), toNumeric(st.Average), toNullNumeric(st.StdDev)}
	}
	return s.write(ctx, TableAggregates, aggregateColumns, []string{"company_name", "state"}, rows, mode)
}

func (s *PostgresStore) write(ctx context.Context, table string, cols, keys []string, rows [][]any, mode Mode) (int64, error) {
	if mode == ModeUpsert {
		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        table,
			Columns:      cols,
			ConflictKeys: keys,
		}, rows)
		return n, eris.Wrapf(err, "postgres: upsert %s", table)
	}
	n, err := db.CopyFrom(ctx, s.pool, table, cols, rows)
	return n, eris.Wrapf(err, "postgres: append %s", table)
}

// Reads

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, int, error) {
	where := ""
	var args []any
	if filter.Search != "" {
		where = ` WHERE cnpj ILIKE $1 OR company_name ILIKE $1`
		args = append(args, likePattern(filter.Search))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM dim_companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count companies")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ans_id, cnpj, COALESCE(company_name, ''), COALESCE(modality, ''), COALESCE(state, '')
		FROM dim_companies` + where +
		fmt.Sprintf(` ORDER BY ans_id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	companies := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.RegistryID, &c.CNPJ, &c.LegalName, &c.Modality, &c.State); err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, c)
	}
	return companies, total, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) GetCompany(ctx context.Context, cnpj string) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT ans_id, cnpj, COALESCE(company_name, ''), COALESCE(modality, ''), COALESCE(state, '')
		 FROM dim_companies WHERE cnpj = $1 ORDER BY ans_id LIMIT 1`,
		cnpj,
	).Scan(&c.RegistryID, &c.CNPJ, &c.LegalName, &c.Modality, &c.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", cnpj)
	}
	return &c, nil
}

func (s *PostgresStore) ListExpenses(ctx context.Context, cnpj string) ([]model.StoredExpense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.ans_id, e.reference_date, e.quarter, e.year, e.amount
		 FROM fact_expenses e JOIN dim_companies c ON c.ans_id = e.ans_id
		 WHERE c.cnpj = $1
		 ORDER BY e.reference_date, e.ans_id`,
		cnpj,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list expenses %s", cnpj)
	}
	defer rows.Close()

	expenses := []model.StoredExpense{}
	for rows.Next() {
		var (
			e      model.StoredExpense
			amount pgtype.Numeric
		)
		if err := rows.Scan(&e.RegistryID, &e.ReferenceDate, &e.Quarter, &e.Year, &amount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan expense")
		}
		e.Amount = fromNumeric(amount).Decimal
		expenses = append(expenses, e)
	}
	return expenses, eris.Wrap(rows.Err(), "postgres: list expenses iterate")
}

func (s *PostgresStore) ListAggregates(ctx context.Context) ([]model.AggregatedStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_name, state, total_amount, avg_amount, stddev_amount
		 FROM aggregated_data ORDER BY total_amount DESC, company_name, state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aggregates")
	}
	defer rows.Close()

	stats := []model.AggregatedStat{}
	for rows.Next() {
		var (
			st                 model.AggregatedStat
			total, avg, stddev pgtype.Numeric
		)
		if err := rows.Scan(&st.CompanyName, &st.State, &total, &avg, &stddev); err != nil {
			return nil, eris.Wrap(err, "postgres: scan aggregate")
		}
		st.Total = fromNumeric(total).Decimal
		st.Average = fromNumeric(avg).Decimal
		st.StdDev = fromNumeric(stddev)
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: list aggregates iterate")
}

// Run log

func (s *PostgresStore) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, now())`,
		id, string(model.RunStatusRunning),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: start run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report any) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, report, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, report any, errMsg string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, report, errMsg)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, report any, errMsg string) error {
	reportJSON, err := marshalReport(report)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = now(), report = $2, error = $3 WHERE id = $4`,
		string(status), reportJSON, nullIfEmpty(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPGRun(s.pool.QueryRow(ctx,
		`SELECT id, status, started_at, completed_at, report, error FROM pipeline_runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, report, error
		 FROM pipeline_runs WHERE true`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(` AND started_at >= $%d`, len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var (
		r          model.Run
		reportJSON *[]byte
		errMsg     *string
	)
	if err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.CompletedAt, &reportJSON, &errMsg); err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if reportJSON != nil {
		if err := json.Unmarshal(*reportJSON, &r.Report); err != nil {
			return nil, eris.Wrap(err, "unmarshal report")
		}
	}
	return &r, nil
}

func marshalReport(report any) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, eris.Wrap(err, "marshal run report")
	}
	return data, nil
}
