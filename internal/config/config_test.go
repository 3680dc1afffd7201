package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty temp dir so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(1), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{
		"http://localhost:5173",
		"http://localhost:8080",
		"http://127.0.0.1:5173",
	}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http", cfg.Source.Listing)
	assert.Equal(t, 3, cfg.Source.Quarters)
	assert.Equal(t, 2, cfg.Source.Concurrency)
	assert.Contains(t, cfg.Source.StatementsURL, "demonstracoes_contabeis")
	assert.Contains(t, cfg.Source.RegistryURL, "Relatorio_cadop.csv")
	assert.Equal(t, "data/raw", cfg.Pipeline.RawDir)
	assert.Equal(t, "data/processed", cfg.Pipeline.ProcessedDir)
	assert.Equal(t, "41", cfg.Pipeline.ExpenseAccount)
	assert.Equal(t, "utf-8", cfg.Pipeline.LedgerEncoding)
	assert.Equal(t, "latin1", cfg.Pipeline.RegistryEncoding)
	assert.Equal(t, "latin1", cfg.Pipeline.OutputEncoding)
	assert.Equal(t, "append", cfg.Pipeline.LoadMode)
	assert.Equal(t, "Teste_ANS.zip", cfg.Pipeline.ArchiveName)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: ans.db
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  load_mode: upsert
  mapping_file: mapping.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ans.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "upsert", cfg.Pipeline.LoadMode)
	assert.Equal(t, "mapping.yaml", cfg.Pipeline.MappingFile)
	// Defaults still apply for unset values
	assert.Equal(t, "41", cfg.Pipeline.ExpenseAccount)
	assert.Equal(t, 3, cfg.Source.Quarters)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ANS_STORE_DRIVER", "postgres")
	t.Setenv("ANS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ANS_SERVER_PORT", "3000")
	t.Setenv("ANS_SOURCE_LISTING", "ftp")
	t.Setenv("ANS_PIPELINE_EXPENSE_ACCOUNT", "411")
	t.Setenv("ANS_STORE_DATABASE_URL", "postgres://localhost/ans")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "ftp", cfg.Source.Listing)
	assert.Equal(t, "411", cfg.Pipeline.ExpenseAccount)
	assert.Equal(t, "postgres://localhost/ans", cfg.Store.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "ans.db"
	cfg.Server.Port = 8000
	cfg.Source.StatementsURL = "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/"
	cfg.Source.RegistryURL = "https://dadosabertos.ans.gov.br/FTP/PDA/operadoras_de_plano_de_saude_ativas/Relatorio_cadop.csv"
	cfg.Source.Listing = "http"
	cfg.Source.Quarters = 3
	cfg.Source.Concurrency = 2
	cfg.Pipeline.RawDir = "data/raw"
	cfg.Pipeline.ProcessedDir = "data/processed"
	cfg.Pipeline.ExpenseAccount = "41"
	cfg.Pipeline.LoadMode = "append"
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"fetch", "pipeline", "load", "migrate", "serve", "runs"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStore_Missing(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")

	// File stages never touch the warehouse.
	assert.NoError(t, cfg.Validate("pipeline"))
	assert.Error(t, cfg.Validate("load"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.Listing = "gopher"
	cfg.Source.Quarters = 0
	cfg.Source.Concurrency = 17

	err := cfg.Validate("fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.listing must be http or ftp")
	assert.Contains(t, err.Error(), "source.quarters must be >= 1")
	assert.Contains(t, err.Error(), "source.concurrency must be between 1 and 16")

	cfg.Source.Listing = "ftp"
	cfg.Source.Quarters = 1
	cfg.Source.Concurrency = 16
	assert.NoError(t, cfg.Validate("fetch"))
}

func TestValidatePipeline(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.ExpenseAccount = ""
	cfg.Pipeline.LoadMode = "replace"

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.expense_account is required")
	assert.Contains(t, err.Error(), "pipeline.load_mode must be append or upsert")

	cfg.Pipeline.ExpenseAccount = "41"
	cfg.Pipeline.LoadMode = "UPSERT"
	assert.NoError(t, cfg.Validate("pipeline"))
}
