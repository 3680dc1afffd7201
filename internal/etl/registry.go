package etl

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/etl/transform"
	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// RegistryFile is the name of the CADOP operator registry export.
const RegistryFile = "Relatorio_cadop.csv"

// Registry is the parsed operator registry. Companies keep file order and
// may repeat a registry id.
type Registry struct {
	Companies []model.Company
	Malformed int
}

// ReadRegistry parses a semicolon-separated CADOP export using m to locate
// the key and company columns.
func ReadRegistry(ctx context.Context, path string, m JoinMapping, encoding string) (Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Registry{}, eris.Wrapf(err, "registry: open %s", path)
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
		return Registry{}, eris.Wrapf(err, "registry: parse %s", path)
	}

	cols := []string{m.RegistryKey}
	for col := range m.Columns {
		cols = append(cols, col)
	}
	idx, err := columnIndex(header, cols...)
	if err != nil {
		return Registry{}, eris.Wrap(err, "registry")
	}

	colOf := func(f string) int { return idx[m.ColumnFor(f)] }
	var reg Registry
	for _, rec := range records {
		id, err := strconv.ParseInt(field(rec, idx[m.RegistryKey]), 10, 64)
		if err != nil {
			reg.Malformed++
			continue
		}
		reg.Companies = append(reg.Companies, model.Company{
			RegistryID: id,
			CNPJ:       field(rec, colOf(FieldCNPJ)),
			LegalName:  field(rec, colOf(FieldLegalName)),
			Modality:   field(rec, colOf(FieldModality)),
			State:      transform.NormalizeState(field(rec, colOf(FieldState))),
		})
	}
	return reg, nil
}
