package etl

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
	"github.com/sells-group/ans-cli/internal/warehouse"
)

// DefaultArchiveName is the ZIP packaging the aggregated CSV.
const DefaultArchiveName = "Teste_ANS.zip"

// PipelineConfig locates the pipeline inputs and artifacts.
type PipelineConfig struct {
	RawDir           string
	ProcessedDir     string
	ExpenseAccount   string
	LedgerEncoding   string
	RegistryEncoding string
	OutputEncoding   string
	Mapping          JoinMapping
	LoadMode         warehouse.Mode
	ArchiveName      string
}

// RunOptions selects the inclusive range of stages to run. Zero values mean
// the first and last stage. Stages after From read their input from the
// artifact written by the previous stage.
type RunOptions struct {
	From Stage
	To   Stage
}

// Pipeline composes the stages and persists their artifacts.
type Pipeline struct {
	cfg    PipelineConfig
	writer warehouse.Writer
	runs   warehouse.RunLog
}

// NewPipeline creates a Pipeline. writer may be nil when the load stage is
// never selected; runs may be nil to disable the run log.
func NewPipeline(cfg PipelineConfig, writer warehouse.Writer, runs warehouse.RunLog) *Pipeline {
	if cfg.ArchiveName == "" {
		cfg.ArchiveName = DefaultArchiveName
	}
	if cfg.LoadMode == "" {
		cfg.LoadMode = warehouse.ModeAppend
	}
	if cfg.Mapping.RegistryKey == "" {
		cfg.Mapping = DefaultMapping()
	}
	return &Pipeline{cfg: cfg, writer: writer, runs: runs}
}

// Path returns the location of a processed artifact.
func (p *Pipeline) Path(name string) string {
	return filepath.Join(p.cfg.ProcessedDir, name)
}

// state carries stage outputs between stages of one run.
type state struct {
	expenses  []model.Expense
	enriched  []model.EnrichedExpense
	validated []model.ValidatedExpense
	stats     []model.AggregatedStat
}

// Run executes the selected stages in order and returns the combined report.
// The report is returned even when a stage fails.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if opts.From == 0 {
		opts.From = StageExtract
	}
	if opts.To == 0 {
		opts.To = StageLoad
	}
	if opts.From > opts.To {
		return nil, eris.Errorf("pipeline: --from %s is after --to %s", opts.From, opts.To)
	}
	if opts.To >= StageLoad && p.writer == nil {
		return nil, eris.New("pipeline: load stage selected without a warehouse")
	}

	log := zap.L().With(zap.String("component", "etl.pipeline"))
	runID := p.startRun(ctx, log)
	start := time.Now()

	report := &Report{}
	err := p.run(ctx, opts, report, log)

	elapsed := time.Since(start)
	if err != nil {
		log.Error("pipeline failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		p.failRun(ctx, log, runID, report, err)
		return report, err
	}
	log.Info("pipeline complete",
		zap.String("from", opts.From.String()),
		zap.String("to", opts.To.String()),
		zap.Duration("elapsed", elapsed),
	)
	p.completeRun(ctx, log, runID, report)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, report *Report, log *zap.Logger) error {
	var st state
	for stage := opts.From; stage <= opts.To; stage++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: context cancelled")
		}
		log.Info("running stage", zap.String("stage", stage.String()))

		var err error
		switch stage {
		case StageExtract:
			err = p.extract(ctx, &st, report)
		case StageEnrich:
			err = p.enrich(ctx, &st, report)
		case StageValidate:
			err = p.validate(ctx, &st, report)
		case StageAggregate:
			err = p.aggregate(ctx, &st, report)
		case StageLoad:
			err = p.load(ctx, &st, report)
		}
		if err != nil {
			return eris.Wrapf(err, "pipeline: %s", stage)
		}
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, st *state, report *Report) error {
	files, err := ListLedgerFiles(p.cfg.RawDir)
	if err != nil {
		return err
	}
	expenses, rep, err := Extract(ctx, files, ExtractConfig{
		ExpenseAccount: p.cfg.ExpenseAccount,
		Encoding:       p.cfg.LedgerEncoding,
	})
	report.Extract = &rep
	if err != nil {
		return err
	}
	st.expenses = expenses
	return WriteConsolidated(p.Path(ConsolidatedFile), expenses)
}

func (p *Pipeline) enrich(ctx context.Context, st *state, report *Report) error {
	if st.expenses == nil {
		expenses, err := ReadConsolidated(ctx, p.Path(ConsolidatedFile))
		if err != nil {
			return err
		}
		st.expenses = expenses
	}
	reg, err := ReadRegistry(ctx, filepath.Join(p.cfg.RawDir, RegistryFile), p.cfg.Mapping, p.cfg.RegistryEncoding)
	if err != nil {
		return err
	}
	enriched, rep := Enrich(st.expenses, reg.Companies)
	report.Enrich = &rep
	st.enriched = enriched
	return WriteEnriched(p.Path(EnrichedFile), p.cfg.OutputEncoding, enriched)
}

func (p *Pipeline) validate(ctx context.Context, st *state, report *Report) error {
	if st.enriched == nil {
		enriched, err := ReadEnriched(ctx, p.Path(EnrichedFile), p.cfg.OutputEncoding)
		if err != nil {
			return err
		}
		st.enriched = enriched
	}
	validated, rep := Validate(st.enriched)
	report.Validate = &rep
	st.validated = validated
	return WriteValidated(p.Path(ValidatedFile), p.cfg.OutputEncoding, validated)
}

func (p *Pipeline) aggregate(ctx context.Context, st *state, report *Report) error {
	if err := p.ensureValidated(ctx, st); err != nil {
		return err
	}
	stats, rep := Aggregate(st.validated)
	report.Aggregate = &rep
	st.stats = stats

	out := p.Path(AggregatedFile)
	if err := WriteAggregated(out, stats); err != nil {
		return err
	}
	return fetcher.WriteZIP(p.Path(p.cfg.ArchiveName), out)
}

func (p *Pipeline) load(ctx context.Context, st *state, report *Report) error {
	if err := p.ensureValidated(ctx, st); err != nil {
		return err
	}
	if st.stats == nil {
		stats, err := ReadAggregated(ctx, p.Path(AggregatedFile))
		if err != nil {
			return err
		}
		st.stats = stats
	}
	rep := Load(ctx, p.writer, st.validated, st.stats, p.cfg.LoadMode)
	report.Load = &rep
	if rep.Failed() {
		failed := 0
		for _, t := range rep.Tables {
			if t.Err != nil {
				failed++
			}
		}
		return eris.Errorf("load: %d of %d table writes failed", failed, len(rep.Tables))
	}
	return nil
}

func (p *Pipeline) ensureValidated(ctx context.Context, st *state) error {
	if st.validated != nil {
		return nil
	}
	validated, err := ReadValidated(ctx, p.Path(ValidatedFile), p.cfg.OutputEncoding)
	if err != nil {
		return err
	}
	st.validated = validated
	return nil
}

// Run log bookkeeping. Failures here are logged and never fail the pipeline.

func (p *Pipeline) startRun(ctx context.Context, log *zap.Logger) string {
	if p.runs == nil {
		return ""
	}
	id, err := p.runs.StartRun(ctx)
	if err != nil {
		log.Error("failed to record run start", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) completeRun(ctx context.Context, log *zap.Logger, runID string, report *Report) {
	if runID == "" {
		return
	}
	if err := p.runs.CompleteRun(ctx, runID, report); err != nil {
		log.Error("failed to record run completion", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) failRun(ctx context.Context, log *zap.Logger, runID string, report *Report, runErr error) {
	if runID == "" {
		return
	}
	if err := p.runs.FailRun(ctx, runID, report, runErr.Error()); err != nil {
		log.Error("failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}
