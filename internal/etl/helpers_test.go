package etl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// writeFile creates dir/name with the given raw content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const ledgerHeader = "DATA;REG_ANS;CD_CONTA_CONTABIL;DESCRICAO;VL_SALDO_INICIAL;VL_SALDO_FINAL\n"

// registryLatin1 is a CADOP extract encoded in ISO-8859-1 ("SAÚDE").
const registryLatin1 = "REGISTRO_OPERADORA;CNPJ;Razao_Social;Nome_Fantasia;Modalidade;UF\n" +
	"419761;11444777000161;ALFA SA\xdaDE LTDA;ALFA;Medicina de Grupo;sp\n" +
	"326305;11.222.333/0001-81;BETA ODONTO S.A.;BETA;Odontologia de Grupo;RJ\n"
