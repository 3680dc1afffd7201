package etl

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarterFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"1T2024.csv", 1, false},
		{"/data/raw/4T2023.csv", 4, false},
		{"2t2024.CSV", 2, false},
		{"0T2024.csv", 0, true},
		{"5T2024.csv", 0, true},
		{"T12024.csv", 0, true},
		{"Relatorio_cadop.csv", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuarterFromFilename(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListLedgerFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2T2024.CSV", ledgerHeader)
	writeFile(t, dir, "1T2024.csv", ledgerHeader)
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "nested/3T2024.csv", ledgerHeader)

	files, err := ListLedgerFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "1T2024.csv"),
		filepath.Join(dir, "2T2024.CSV"),
	}, files)
}

func TestListLedgerFiles_MissingDir(t *testing.T) {
	_, err := ListLedgerFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	q1 := writeFile(t, dir, "1T2024.csv", ledgerHeader+
		`"01/01/2024";"419761";"41";"EVENTOS";"0";"1.234,56"`+"\n"+
		`"01/01/2024";"419761";"31";"RECEITAS";"0";"999,00"`+"\n"+
		`"01/01/2024";"326305";"41";"EVENTOS";"0";"0,00"`+"\n"+
		`"01/01/2024";"326305";"41";"EVENTOS";"0";"-15,20"`+"\n"+
		`"ontem";"326305";"41";"EVENTOS";"0";"10,00"`+"\n")
	q2 := writeFile(t, dir, "2T2024.csv", ledgerHeader+
		`2024-04-01;419761;41;EVENTOS;0;200`+"\n")
	bad := writeFile(t, dir, "resumo.csv", ledgerHeader)
	noCols := writeFile(t, dir, "3T2024.csv", "A;B\n1;2\n")

	expenses, report, err := Extract(context.Background(), []string{q1, q2, bad, noCols}, ExtractConfig{})
	require.NoError(t, err)

	require.Len(t, expenses, 2)
	assert.Equal(t, int64(419761), expenses[0].RegistryID)
	assert.Equal(t, 1, expenses[0].Quarter)
	assert.Equal(t, 2024, expenses[0].Year)
	assert.Equal(t, "1234.56", expenses[0].Amount.String())
	assert.Equal(t, 2, expenses[1].Quarter)
	assert.Equal(t, "200", expenses[1].Amount.String())

	assert.Equal(t, []string{q1, q2}, report.Files)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, bad, report.Skipped[0].File)
	assert.Equal(t, noCols, report.Skipped[1].File)
	assert.Contains(t, report.Skipped[1].Reason, "missing columns")
	assert.Equal(t, 6, report.RowsRead)
	assert.Equal(t, 5, report.ExpenseRows)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 2, report.Inconsistent)
	assert.Equal(t, 2, report.Output)
}

func TestExtract_YearFromDateNotFilename(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "4T2024.csv", ledgerHeader+"01/10/2023;1;41;X;0;5,00\n")

	expenses, _, err := Extract(context.Background(), []string{f}, ExtractConfig{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, 2023, expenses[0].Year)
	assert.Equal(t, 4, expenses[0].Quarter)
}

func TestExtract_CustomAccount(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "1T2024.csv", ledgerHeader+
		"01/01/2024;1;41;X;0;5,00\n"+
		"01/01/2024;1;411;X;0;7,00\n")

	expenses, _, err := Extract(context.Background(), []string{f}, ExtractConfig{ExpenseAccount: "411"})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "7", expenses[0].Amount.String())
}

func TestExtract_Latin1Ledger(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "1T2024.csv", ledgerHeader+"01/01/2024;1;41;EVENTOS IND\xc9NIZ\xc1VEIS;0;5,00\n")

	expenses, _, err := Extract(context.Background(), []string{f}, ExtractConfig{Encoding: "latin1"})
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestExtract_NoInput(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "Relatorio_cadop.csv", "x")

	_, report, err := Extract(context.Background(), []string{f, filepath.Join(dir, "1T2024.csv")}, ExtractConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoInput))
	assert.Len(t, report.Skipped, 2)

	_, _, err = Extract(context.Background(), nil, ExtractConfig{})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestExtract_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "1T2024.csv", ledgerHeader)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Extract(ctx, []string{f}, ExtractConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
