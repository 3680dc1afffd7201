package etl

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// Artifact file names under the processed directory.
const (
	ConsolidatedFile = "consolidado_despesas.csv"
	EnrichedFile     = "consolidado_enriquecido.csv"
	ValidatedFile    = "resultado_validado.csv"
	AggregatedFile   = "despesas_agregadas.csv"
)

var (
	consolidatedHeader = []string{"REG_ANS", "Trimestre", "Ano", "ValorDespesas"}
	enrichedHeader     = []string{"CNPJ", "Razao_Social", "Trimestre", "Ano", "ValorDespesas", "RegistroANS", "Modalidade", "UF"}
	validatedHeader    = append(append([]string{}, enrichedHeader...), "CNPJ_Valido", "Nome_Valido", "Valor_Valido")
	aggregatedHeader   = []string{"Razao_Social", "UF", "Total_Despesas", "Media_Trimestral", "Desvio_Padrao"}
)

// WriteConsolidated writes the extraction output as UTF-8 CSV.
func WriteConsolidated(path string, expenses []model.Expense) error {
	rows := make([][]string, len(expenses))
	for i, e := range expenses {
		rows[i] = []string{
			strconv.FormatInt(e.RegistryID, 10),
			strconv.Itoa(e.Quarter),
			strconv.Itoa(e.Year),
			e.Amount.String(),
		}
	}
	return writeCSV(path, "", consolidatedHeader, rows)
}

// ReadConsolidated reads a consolidated artifact.
func ReadConsolidated(ctx context.Context, path string) ([]model.Expense, error) {
	key := consolidatedHeader[0]
	header, rows, err := readCSV(ctx, path, "")
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, key, "Trimestre", "Ano", "ValorDespesas")
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	out := make([]model.Expense, 0, len(rows))
	for i, rec := range rows {
		e, err := parseExpense(rec, idx[key], idx["Trimestre"], idx["Ano"], idx["ValorDespesas"])
		if err != nil {
			return nil, eris.Wrapf(err, "read %s: line %d", path, i+2)
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteEnriched writes the enrichment output in the given encoding.
func WriteEnriched(path, encoding string, rows []model.EnrichedExpense) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = enrichedRecord(r)
	}
	return writeCSV(path, encoding, enrichedHeader, out)
}

// ReadEnriched reads an enrichment artifact.
func ReadEnriched(ctx context.Context, path, encoding string) ([]model.EnrichedExpense, error) {
	header, rows, err := readCSV(ctx, path, encoding)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, enrichedHeader...)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	out := make([]model.EnrichedExpense, 0, len(rows))
	for i, rec := range rows {
		r, err := parseEnriched(rec, idx)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s: line %d", path, i+2)
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteValidated writes the validation output with its three flag columns.
func WriteValidated(path, encoding string, rows []model.ValidatedExpense) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append(enrichedRecord(r.EnrichedExpense),
			formatFlag(r.CNPJValid),
			formatFlag(r.NameValid),
			formatFlag(r.AmountValid),
		)
	}
	return writeCSV(path, encoding, validatedHeader, out)
}

// ReadValidated reads a validation artifact.
func ReadValidated(ctx context.Context, path, encoding string) ([]model.ValidatedExpense, error) {
	header, rows, err := readCSV(ctx, path, encoding)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, validatedHeader...)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	out := make([]model.ValidatedExpense, 0, len(rows))
	for i, rec := range rows {
		line := i + 2
		r, err := parseEnriched(rec, idx)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s: line %d", path, line)
		}
		v := model.ValidatedExpense{EnrichedExpense: r}
		flags := []struct {
			col string
			dst *bool
		}{
			{"CNPJ_Valido", &v.CNPJValid},
			{"Nome_Valido", &v.NameValid},
			{"Valor_Valido", &v.AmountValid},
		}
		for _, fl := range flags {
			b, err := strconv.ParseBool(field(rec, idx[fl.col]))
			if err != nil {
				return nil, eris.Wrapf(err, "read %s: line %d: %s", path, line, fl.col)
			}
			*fl.dst = b
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteAggregated writes the aggregation output as UTF-8 CSV with two-place
// figures. An undefined standard deviation is written as an empty field.
func WriteAggregated(path string, stats []model.AggregatedStat) error {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		stddev := ""
		if s.StdDev.Valid {
			stddev = s.StdDev.Decimal.StringFixed(statPlaces)
		}
		rows[i] = []string{
			s.CompanyName,
			s.State,
			s.Total.StringFixed(statPlaces),
			s.Average.StringFixed(statPlaces),
			stddev,
		}
	}
	return writeCSV(path, "", aggregatedHeader, rows)
}

// ReadAggregated reads an aggregation artifact.
func ReadAggregated(ctx context.Context, path string) ([]model.AggregatedStat, error) {
	header, rows, err := readCSV(ctx, path, "")
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, aggregatedHeader...)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	out := make([]model.AggregatedStat, 0, len(rows))
	for i, rec := range rows {
		line := i + 2
		s := model.AggregatedStat{
			CompanyName: field(rec, idx["Razao_Social"]),
			State:       field(rec, idx["UF"]),
		}
		if s.Total, err = decimal.NewFromString(field(rec, idx["Total_Despesas"])); err != nil {
			return nil, eris.Wrapf(err, "read %s: line %d: Total_Despesas", path, line)
		}
		if s.Average, err = decimal.NewFromString(field(rec, idx["Media_Trimestral"])); err != nil {
			return nil, eris.Wrapf(err, "read %s: line %d: Media_Trimestral", path, line)
		}
		if raw := field(rec, idx["Desvio_Padrao"]); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "read %s: line %d: Desvio_Padrao", path, line)
			}
			s.StdDev = decimal.NewNullDecimal(d)
		}
		out = append(out, s)
	}
	return out, nil
}

func enrichedRecord(r model.EnrichedExpense) []string {
	return []string{
		r.CNPJ,
		r.LegalName,
		strconv.Itoa(r.Quarter),
		strconv.Itoa(r.Year),
		r.Amount.String(),
		strconv.FormatInt(r.RegistryID, 10),
		r.Modality,
		r.State,
	}
}

func parseEnriched(rec []string, idx map[string]int) (model.EnrichedExpense, error) {
	e, err := parseExpense(rec, idx["RegistroANS"], idx["Trimestre"], idx["Ano"], idx["ValorDespesas"])
	if err != nil {
		return model.EnrichedExpense{}, err
	}
	r := model.EnrichedExpense{
		Expense:   e,
		CNPJ:      field(rec, idx["CNPJ"]),
		LegalName: field(rec, idx["Razao_Social"]),
		Modality:  field(rec, idx["Modalidade"]),
		State:     field(rec, idx["UF"]),
	}
	r.Matched = r.CNPJ != "" || r.LegalName != "" || r.Modality != "" || r.State != ""
	return r, nil
}

func parseExpense(rec []string, idCol, quarterCol, yearCol, amountCol int) (model.Expense, error) {
	var (
		e   model.Expense
		err error
	)
	if e.RegistryID, err = strconv.ParseInt(field(rec, idCol), 10, 64); err != nil {
		return e, eris.Wrap(err, "registry id")
	}
	if e.Quarter, err = strconv.Atoi(field(rec, quarterCol)); err != nil {
		return e, eris.Wrap(err, "quarter")
	}
	if e.Year, err = strconv.Atoi(field(rec, yearCol)); err != nil {
		return e, eris.Wrap(err, "year")
	}
	if e.Amount, err = decimal.NewFromString(field(rec, amountCol)); err != nil {
		return e, eris.Wrap(err, "amount")
	}
	return e, nil
}

func formatFlag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// columnIndex maps each wanted column to its position in header, matching
// case-insensitively. A missing column is an error.
func columnIndex(header []string, want ...string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	idx := make(map[string]int, len(want))
	var missing []string
	for _, w := range want {
		i, ok := pos[strings.ToUpper(w)]
		if !ok {
			missing = append(missing, w)
			continue
		}
		idx[w] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// field returns rec[i] or "" when the row is short.
func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func readCSV(ctx context.Context, path, encoding string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
		Encoding:  encoding,
		HasHeader: true,
		TrimSpace: true,
	})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "parse %s", path)
	}
	return header, rows, nil
}

func writeCSV(path, encoding string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc, err := fetcher.EncodeWriter(f, encoding)
	if err != nil {
		return err
	}
	w := csv.NewWriter(enc)
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	if err := enc.Close(); err != nil {
		return eris.Wrapf(err, "flush %s", path)
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}
