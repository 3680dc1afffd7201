// Package source collects the raw ANS inputs: the latest quarterly
// accounting-statement archives and the operator registry (CADOP).
package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/resilience"
)

// Default locations on the ANS open-data portal.
const (
	DefaultStatementsURL = "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/"
	DefaultRegistryURL   = "https://dadosabertos.ans.gov.br/FTP/PDA/operadoras_de_plano_de_saude_ativas/Relatorio_cadop.csv"
	DefaultQuarters      = 3
	DefaultConcurrency   = 2

	registryFile = "Relatorio_cadop.csv"
	archiveDir   = "archives"
)

var yearDir = regexp.MustCompile(`^\d{4}$`)

// Remote lists and downloads files from the portal, over HTTP or FTP.
type Remote interface {
	fetcher.Fetcher
	fetcher.Lister
}

// Config controls what is collected and where it lands.
type Config struct {
	StatementsURL string
	RegistryURL   string
	// Quarters is the number of most recent archives to collect.
	Quarters    int
	Concurrency int
	// RawDir receives the extracted ledgers and the registry. Archives are
	// kept under RawDir/archives so later runs can skip them.
	RawDir string
	Retry  resilience.Policy
}

// Archive is one quarterly ZIP published on the portal.
type Archive struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Year int    `json:"year"`
}

// Report summarizes a collection run.
type Report struct {
	Found              int      `json:"found"`
	Downloaded         []string `json:"downloaded,omitempty"`
	Skipped            []string `json:"skipped,omitempty"`
	Extracted          []string `json:"extracted,omitempty"`
	Registry           string   `json:"registry,omitempty"`
	RegistryDownloaded bool     `json:"registry_downloaded"`
}

// Collector discovers and downloads the pipeline inputs.
type Collector struct {
	remote Remote
	cfg    Config
	log    *zap.Logger
}

// NewCollector creates a Collector, filling unset config with defaults.
func NewCollector(remote Remote, cfg Config) *Collector {
	if cfg.StatementsURL == "" {
		cfg.StatementsURL = DefaultStatementsURL
	}
	if !strings.HasSuffix(cfg.StatementsURL, "/") {
		cfg.StatementsURL += "/"
	}
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultRegistryURL
	}
	if cfg.Quarters <= 0 {
		cfg.Quarters = DefaultQuarters
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = resilience.DefaultPolicy()
	}
	return &Collector{
		remote: remote,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "source")),
	}
}

// Run discovers the latest archives, collects them and fetches the registry.
func (c *Collector) Run(ctx context.Context) (Report, error) {
	archives, err := c.Discover(ctx)
	if err != nil {
		return Report{}, err
	}
	report, err := c.Collect(ctx, archives)
	if err != nil {
		return report, err
	}
	report.Registry, report.RegistryDownloaded, err = c.FetchRegistry(ctx)
	return report, err
}

// Discover walks the year directories newest first and returns the most
// recent Quarters archives, newest first.
func (c *Collector) Discover(ctx context.Context) ([]Archive, error) {
	entries, err := c.list(ctx, c.cfg.StatementsURL)
	if err != nil {
		return nil, eris.Wrap(err, "source: list statements index")
	}

	var years []fetcher.Entry
	for _, e := range entries {
		if e.Dir && yearDir.MatchString(e.Name) {
			years = append(years, e)
		}
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Name > years[j].Name })

	var archives []Archive
	for _, y := range years {
		year, _ := strconv.Atoi(y.Name)
		files, err := c.list(ctx, y.URL)
		if err != nil {
			return nil, eris.Wrapf(err, "source: list year %s", y.Name)
		}

		var zips []fetcher.Entry
		for _, f := range files {
			if !f.Dir && strings.EqualFold(filepath.Ext(f.Name), ".zip") {
				zips = append(zips, f)
			}
		}
		sort.Slice(zips, func(i, j int) bool { return zips[i].Name > zips[j].Name })

		for _, z := range zips {
			archives = append(archives, Archive{Name: z.Name, URL: z.URL, Year: year})
			if len(archives) == c.cfg.Quarters {
				c.log.Info("discovered archives", zap.Int("count", len(archives)))
				return archives, nil
			}
		}
	}

	c.log.Info("discovered archives", zap.Int("count", len(archives)))
	return archives, nil
}

func (c *Collector) list(ctx context.Context, dirURL string) ([]fetcher.Entry, error) {
	p := c.cfg.Retry
	p.OnRetry = resilience.LogRetry("source", dirURL)
	return resilience.DoVal(ctx, p, func(ctx context.Context) ([]fetcher.Entry, error) {
		return c.remote.List(ctx, dirURL)
	})
}

// Collect downloads each archive not already present and extracts it into
// RawDir. Downloads run concurrently up to Concurrency.
func (c *Collector) Collect(ctx context.Context, archives []Archive) (Report, error) {
	report := Report{Found: len(archives)}
	dir := filepath.Join(c.cfg.RawDir, archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, eris.Wrap(err, "source: create archive dir")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, a := range archives {
		g.Go(func() error {
			dest := filepath.Join(dir, a.Name)
			downloaded, err := c.download(gctx, a.URL, dest)
			if err != nil {
				return eris.Wrapf(err, "source: download %s", a.Name)
			}

			files, err := fetcher.ExtractZIP(dest, c.cfg.RawDir)
			if err != nil {
				return eris.Wrapf(err, "source: extract %s", a.Name)
			}

			mu.Lock()
			defer mu.Unlock()
			if downloaded {
				report.Downloaded = append(report.Downloaded, a.Name)
			} else {
				report.Skipped = append(report.Skipped, a.Name)
			}
			report.Extracted = append(report.Extracted, files...)
			return nil
		})
	}

	err := g.Wait()
	sort.Strings(report.Downloaded)
	sort.Strings(report.Skipped)
	sort.Strings(report.Extracted)
	if err != nil {
		return report, err
	}

	c.log.Info("collected archives",
		zap.Int("downloaded", len(report.Downloaded)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("extracted", len(report.Extracted)),
	)
	return report, nil
}

// FetchRegistry downloads the operator registry into RawDir unless it is
// already there. It returns the local path and whether it was downloaded.
func (c *Collector) FetchRegistry(ctx context.Context) (string, bool, error) {
	dest := filepath.Join(c.cfg.RawDir, registryFile)
	downloaded, err := c.download(ctx, c.cfg.RegistryURL, dest)
	if err != nil {
		return dest, false, eris.Wrap(err, "source: download registry")
	}
	return dest, downloaded, nil
}

// download fetches url into dest with retries. An existing dest is kept.
func (c *Collector) download(ctx context.Context, url, dest string) (bool, error) {
	if _, err := os.Stat(dest); err == nil {
		c.log.Debug("already present, skipping", zap.String("file", dest))
		return false, nil
	}

	p := c.cfg.Retry
	p.OnRetry = resilience.LogRetry("source", url)
	n, err := resilience.DoVal(ctx, p, func(ctx context.Context) (int64, error) {
		return c.remote.DownloadToFile(ctx, url, dest)
	})
	if err != nil {
		return false, err
	}
	c.log.Info("downloaded", zap.String("url", url), zap.Int64("bytes", n))
	return true, nil
}
