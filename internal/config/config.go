package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// StoreConfig configures the warehouse backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SourceConfig configures collection from the ANS open-data portal.
type SourceConfig struct {
	StatementsURL string `yaml:"statements_url" mapstructure:"statements_url"`
	RegistryURL   string `yaml:"registry_url" mapstructure:"registry_url"`
	Listing       string `yaml:"listing" mapstructure:"listing"`
	Quarters      int    `yaml:"quarters" mapstructure:"quarters"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig configures the ETL stages.
type PipelineConfig struct {
	RawDir           string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ProcessedDir     string `yaml:"processed_dir" mapstructure:"processed_dir"`
	ExpenseAccount   string `yaml:"expense_account" mapstructure:"expense_account"`
	LedgerEncoding   string `yaml:"ledger_encoding" mapstructure:"ledger_encoding"`
	RegistryEncoding string `yaml:"registry_encoding" mapstructure:"registry_encoding"`
	OutputEncoding   string `yaml:"output_encoding" mapstructure:"output_encoding"`
	MappingFile      string `yaml:"mapping_file" mapstructure:"mapping_file"`
	LoadMode         string `yaml:"load_mode" mapstructure:"load_mode"`
	ArchiveName      string `yaml:"archive_name" mapstructure:"archive_name"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:5173",
		"http://localhost:8080",
		"http://127.0.0.1:5173",
	})
	v.SetDefault("source.statements_url", "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/")
	v.SetDefault("source.registry_url", "https://dadosabertos.ans.gov.br/FTP/PDA/operadoras_de_plano_de_saude_ativas/Relatorio_cadop.csv")
	v.SetDefault("source.listing", "http")
	v.SetDefault("source.quarters", 3)
	v.SetDefault("source.concurrency", 2)
	v.SetDefault("source.user_agent", "ans-cli/1.0")
	v.SetDefault("source.timeout_secs", 300)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("pipeline.raw_dir", "data/raw")
	v.SetDefault("pipeline.processed_dir", "data/processed")
	v.SetDefault("pipeline.expense_account", "41")
	v.SetDefault("pipeline.ledger_encoding", "utf-8")
	v.SetDefault("pipeline.registry_encoding", "latin1")
	v.SetDefault("pipeline.output_encoding", "latin1")
	v.SetDefault("pipeline.mapping_file", "")
	v.SetDefault("pipeline.load_mode", "append")
	v.SetDefault("pipeline.archive_name", "Teste_ANS.zip")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: fetch,
// pipeline (file stages only), load (pipeline with the warehouse), migrate,
// serve, runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "fetch":
		errs = append(errs, c.validateSource()...)
	case "pipeline":
		errs = append(errs, c.validatePipeline()...)
	case "load":
		errs = append(errs, c.validatePipeline()...)
		needStore = true
	case "migrate", "runs":
		needStore = true
	case "serve":
		needStore = true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needStore {
		errs = append(errs, c.validateStore()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateSource() []string {
	var errs []string
	if c.Source.StatementsURL == "" {
		errs = append(errs, "source.statements_url is required")
	}
	if c.Source.RegistryURL == "" {
		errs = append(errs, "source.registry_url is required")
	}
	switch c.Source.Listing {
	case "http", "ftp":
	default:
		errs = append(errs, "source.listing must be http or ftp")
	}
	if c.Source.Quarters < 1 {
		errs = append(errs, "source.quarters must be >= 1")
	}
	if c.Source.Concurrency < 1 || c.Source.Concurrency > 16 {
		errs = append(errs, "source.concurrency must be between 1 and 16")
	}
	if c.Pipeline.RawDir == "" {
		errs = append(errs, "pipeline.raw_dir is required")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.RawDir == "" {
		errs = append(errs, "pipeline.raw_dir is required")
	}
	if c.Pipeline.ProcessedDir == "" {
		errs = append(errs, "pipeline.processed_dir is required")
	}
	if c.Pipeline.ExpenseAccount == "" {
		errs = append(errs, "pipeline.expense_account is required")
	}
	switch strings.ToLower(c.Pipeline.LoadMode) {
	case "", "append", "upsert":
	default:
		errs = append(errs, "pipeline.load_mode must be append or upsert")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
