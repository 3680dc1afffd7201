package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/config"
	"github.com/sells-group/ans-cli/internal/etl"
	"github.com/sells-group/ans-cli/internal/warehouse"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the expense ETL",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ETL stages from extract through load",
	Long: "Runs extract, enrich, validate, aggregate and load in order. --from and --to " +
		"select a contiguous range; stages after --from read the artifact written by the " +
		"previous stage.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		opts, err := parseRunOptions(from, to)
		if err != nil {
			return err
		}
		if mode, _ := cmd.Flags().GetString("load-mode"); mode != "" {
			cfg.Pipeline.LoadMode = mode
		}

		withLoad := opts.To == etl.StageLoad
		validateMode := "pipeline"
		if withLoad {
			validateMode = "load"
		}
		if err := cfg.Validate(validateMode); err != nil {
			return err
		}

		pcfg, err := buildPipelineConfig(cfg.Pipeline)
		if err != nil {
			return err
		}

		var (
			writer warehouse.Writer
			runs   warehouse.RunLog
		)
		if withLoad {
			st, err := openMigratedStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			writer, runs = st, st
		}

		report, runErr := etl.NewPipeline(pcfg, writer, runs).Run(ctx, opts)
		if report != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				zap.L().Warn("write report", zap.Error(err))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}
		return nil
	},
}

func init() {
	pipelineRunCmd.Flags().String("from", etl.StageExtract.String(), "first stage to run (extract, enrich, validate, aggregate, load)")
	pipelineRunCmd.Flags().String("to", etl.StageLoad.String(), "last stage to run")
	pipelineRunCmd.Flags().String("load-mode", "", "warehouse write mode: append or upsert (default from config)")

	pipelineCmd.AddCommand(pipelineRunCmd)
	rootCmd.AddCommand(pipelineCmd)
}

func parseRunOptions(from, to string) (etl.RunOptions, error) {
	f, err := etl.ParseStage(from)
	if err != nil {
		return etl.RunOptions{}, eris.Wrap(err, "--from")
	}
	t, err := etl.ParseStage(to)
	if err != nil {
		return etl.RunOptions{}, eris.Wrap(err, "--to")
	}
	if f > t {
		return etl.RunOptions{}, eris.Errorf("--from %s is after --to %s", f, t)
	}
	return etl.RunOptions{From: f, To: t}, nil
}

// buildPipelineConfig resolves the load mode and join mapping.
func buildPipelineConfig(c config.PipelineConfig) (etl.PipelineConfig, error) {
	mode, err := warehouse.ParseMode(c.LoadMode)
	if err != nil {
		return etl.PipelineConfig{}, err
	}

	mapping, err := etl.LoadMapping(c.MappingFile)
	if err != nil {
		return etl.PipelineConfig{}, err
	}

	return etl.PipelineConfig{
		RawDir:           c.RawDir,
		ProcessedDir:     c.ProcessedDir,
		ExpenseAccount:   c.ExpenseAccount,
		LedgerEncoding:   c.LedgerEncoding,
		RegistryEncoding: c.RegistryEncoding,
		OutputEncoding:   c.OutputEncoding,
		Mapping:          mapping,
		LoadMode:         mode,
		ArchiveName:      c.ArchiveName,
	}, nil
}
