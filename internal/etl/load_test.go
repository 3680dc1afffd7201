package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ans-cli/internal/model"
	"github.com/sells-group/ans-cli/internal/warehouse"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteCompanies(ctx context.Context, companies []model.Company, mode warehouse.Mode) (int64, error) {
	args := m.Called(ctx, companies, mode)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWriter) WriteExpenses(ctx context.Context, expenses []model.Expense, mode warehouse.Mode) (int64, error) {
	args := m.Called(ctx, expenses, mode)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWriter) WriteAggregates(ctx context.Context, stats []model.AggregatedStat, mode warehouse.Mode) (int64, error) {
	args := m.Called(ctx, stats, mode)
	return args.Get(0).(int64), args.Error(1)
}

func loadFixture() ([]model.ValidatedExpense, []model.AggregatedStat) {
	alfa := model.EnrichedExpense{CNPJ: "11444777000161", LegalName: "ALFA", State: "SP", Matched: true}
	rows := []model.ValidatedExpense{
		{EnrichedExpense: withExpense(alfa, expense(1, 1, "100"))},
		{EnrichedExpense: withExpense(alfa, expense(1, 2, "200"))},
	}
	stats := []model.AggregatedStat{
		{CompanyName: "ALFA", State: "SP", Total: decimal.NewFromInt(300), Average: decimal.NewFromInt(150)},
	}
	return rows, stats
}

func withExpense(e model.EnrichedExpense, exp model.Expense) model.EnrichedExpense {
	e.Expense = exp
	return e
}

func TestLoad_AllTables(t *testing.T) {
	rows, stats := loadFixture()
	w := &mockWriter{}
	w.On("WriteCompanies", mock.Anything, mock.MatchedBy(func(cs []model.Company) bool {
		return len(cs) == 1 && cs[0].RegistryID == 1 && cs[0].CNPJ == "11444777000161"
	}), warehouse.ModeUpsert).Return(int64(1), nil)
	w.On("WriteExpenses", mock.Anything, mock.MatchedBy(func(es []model.Expense) bool {
		return len(es) == 2
	}), warehouse.ModeUpsert).Return(int64(2), nil)
	w.On("WriteAggregates", mock.Anything, stats, warehouse.ModeUpsert).Return(int64(1), nil)

	report := Load(context.Background(), w, rows, stats, warehouse.ModeUpsert)

	assert.False(t, report.Failed())
	assert.Equal(t, warehouse.ModeUpsert, report.Mode)
	assert.Equal(t, []TableLoad{
		{Table: warehouse.TableCompanies, Rows: 1},
		{Table: warehouse.TableExpenses, Rows: 2},
		{Table: warehouse.TableAggregates, Rows: 1},
	}, report.Tables)
	w.AssertExpectations(t)
}

func TestLoad_FailureDoesNotBlockSiblings(t *testing.T) {
	rows, stats := loadFixture()
	boom := errors.New("duplicate key value violates unique constraint")

	w := &mockWriter{}
	w.On("WriteCompanies", mock.Anything, mock.Anything, warehouse.ModeAppend).Return(int64(0), boom)
	w.On("WriteExpenses", mock.Anything, mock.Anything, warehouse.ModeAppend).Return(int64(2), nil)
	w.On("WriteAggregates", mock.Anything, mock.Anything, warehouse.ModeAppend).Return(int64(1), nil)

	report := Load(context.Background(), w, rows, stats, warehouse.ModeAppend)

	require.Len(t, report.Tables, 3)
	assert.True(t, report.Failed())
	assert.Equal(t, boom, report.Tables[0].Err)
	assert.Equal(t, boom.Error(), report.Tables[0].Error)
	assert.Zero(t, report.Tables[0].Rows)
	assert.Equal(t, int64(2), report.Tables[1].Rows)
	assert.NoError(t, report.Tables[2].Err)
	w.AssertNumberOfCalls(t, "WriteCompanies", 1)
	w.AssertExpectations(t)
}
