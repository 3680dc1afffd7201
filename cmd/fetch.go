package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/config"
	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/resilience"
	"github.com/sells-group/ans-cli/internal/source"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the latest quarterly statements and the operator registry",
	Long: "Lists the ANS accounting-statements index, downloads the most recent quarterly " +
		"archives into the raw directory, extracts them and fetches Relatorio_cadop.csv. " +
		"Files already present are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if q, _ := cmd.Flags().GetInt("quarters"); q > 0 {
			cfg.Source.Quarters = q
		}
		if l, _ := cmd.Flags().GetString("listing"); l != "" {
			cfg.Source.Listing = l
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		collector, err := newCollector(cfg)
		if err != nil {
			return err
		}

		report, err := collector.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		zap.L().Info("fetch complete",
			zap.Int("found", report.Found),
			zap.Int("downloaded", len(report.Downloaded)),
			zap.Int("skipped", len(report.Skipped)),
			zap.Int("extracted", len(report.Extracted)),
			zap.Bool("registry_downloaded", report.RegistryDownloaded),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	fetchCmd.Flags().Int("quarters", 0, "number of most recent quarterly archives to collect (default from config)")
	fetchCmd.Flags().String("listing", "", "listing protocol: http or ftp (default from config)")
	rootCmd.AddCommand(fetchCmd)
}

// newCollector builds a source collector over the configured transport.
func newCollector(c *config.Config) (*source.Collector, error) {
	remote, err := newRemote(c.Source)
	if err != nil {
		return nil, err
	}

	policy := resilience.DefaultPolicy().WithAttempts(c.Source.MaxRetries)
	policy.OnRetry = resilience.LogRetry("source", c.Source.StatementsURL)

	return source.NewCollector(remote, source.Config{
		StatementsURL: c.Source.StatementsURL,
		RegistryURL:   c.Source.RegistryURL,
		Quarters:      c.Source.Quarters,
		Concurrency:   c.Source.Concurrency,
		RawDir:        c.Pipeline.RawDir,
		Retry:         policy,
	}), nil
}

// newRemote builds the transport for the collector. The collector owns the
// retry policy, so the HTTP fetcher makes a single attempt per call.
func newRemote(c config.SourceConfig) (source.Remote, error) {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	switch c.Listing {
	case "", "http":
		return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    c.UserAgent,
			Timeout:      timeout,
			MaxRetries:   1,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}), nil
	case "ftp":
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}), nil
	default:
		return nil, eris.Errorf("unsupported listing protocol: %s", c.Listing)
	}
}
