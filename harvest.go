package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/email-harvester/config"
	"github.com/IliaW/email-harvester/internal/aws_s3"
	"github.com/IliaW/email-harvester/internal/broker"
	cacheClient "github.com/IliaW/email-harvester/internal/cache"
	"github.com/IliaW/email-harvester/internal/crawler"
	"github.com/IliaW/email-harvester/internal/fetcher"
	"github.com/IliaW/email-harvester/internal/model"
	"github.com/IliaW/email-harvester/internal/output"
	"github.com/IliaW/email-harvester/internal/resolver"
	"github.com/IliaW/email-harvester/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// harvester holds everything one command invocation needs.
type harvester struct {
	cfg   *config.Config
	log   *slog.Logger
	out   io.Writer
	cache cacheClient.CachedClient
	s3    aws_s3.BucketClient
}

// newHarvester loads and validates the configuration and connects the optional sinks. Sinks that
// cannot be reached are skipped with a warning.
func newHarvester(ctx context.Context, cmd *cobra.Command) (*harvester, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	h := &harvester{
		cfg: cfg,
		log: setupLogger(cfg, cmd.ErrOrStderr()),
		out: cmd.OutOrStdout(),
	}

	if cfg.CacheSettings != nil && cfg.CacheSettings.Servers != "" {
		mc, err := cacheClient.NewMemcachedClient(cfg.CacheSettings, h.log)
		if err != nil {
			h.log.Warn("website cache disabled.", slog.String("err", err.Error()))
		} else {
			h.cache = mc
		}
	}
	if cfg.S3Settings != nil && cfg.S3Settings.BucketName != "" {
		s3, err := aws_s3.NewS3BucketClient(ctx, cfg.S3Settings, h.log)
		if err != nil {
			h.log.Warn("s3 upload disabled.", slog.String("err", err.Error()))
		} else {
			h.s3 = s3
		}
	}

	return h, nil
}

func (h *harvester) close() {
	if h.cache != nil {
		h.cache.Close()
	}
}

// fetcher builds the page fetcher: plain or rendered, with the archive behind it when enabled.
func (h *harvester) fetcher() fetcher.Fetcher {
	sc := h.cfg.ScraperSettings
	var f fetcher.Fetcher
	if sc.Render {
		f = fetcher.NewBrowserFetcher(fetcher.BrowserOptions{
			PageLoadTimeout: sc.PageLoadTimeout,
			SettleTimeout:   sc.SettleTimeout,
			UserAgent:       sc.UserAgent,
			Headless:        sc.Headless,
			ChromePath:      sc.ChromePath,
		}, h.log)
	} else {
		f = fetcher.NewHTTPFetcher(sc.RequestTimeout, sc.UserAgent, h.log)
	}
	if h.cfg.ArchiveSettings != nil && h.cfg.ArchiveSettings.Enabled {
		f = &fetcher.Fallback{
			Primary:   f,
			Secondary: crawler.NewCrawlService(h.cfg.ArchiveSettings, h.log),
			Log:       h.log,
		}
	}

	return f
}

func (h *harvester) resolver(f fetcher.Fetcher) *resolver.Resolver {
	var websiteCache resolver.WebsiteCache
	if h.cache != nil {
		websiteCache = h.cache
	}
	return resolver.New(f, websiteCache, h.log)
}

// run processes targets, streams records to kafka when configured, writes every output file and
// prints the summary. A cancelled run still writes what it has.
func (h *harvester) run(ctx context.Context, targets []model.Target, mode model.Mode, outputs []string,
	progress worker.ProgressFunc) (*model.Report, error) {
	f := h.fetcher()
	w := &worker.ScrapeWorker{
		RunID:          uuid.New().String(),
		Fetcher:        f,
		MaxConcurrency: h.cfg.ScraperSettings.MaxConcurrency,
		Delay:          h.cfg.ScraperSettings.DelayDuration(),
		Progress:       progress,
		Log:            h.log,
	}
	if mode == model.MapsDerived {
		w.Resolver = h.resolver(f)
	}

	var producerWg sync.WaitGroup
	var recordChan chan *model.Record
	if h.cfg.KafkaSettings != nil && h.cfg.KafkaSettings.Addr != "" {
		recordChan = make(chan *model.Record, len(targets))
		producerWg.Add(1)
		go broker.NewKafkaProducer(recordChan, w.RunID, mode, h.cfg.KafkaSettings, h.log, &producerWg).Run()
		w.Progress = func(rec *model.Record, done, total int) {
			recordChan <- rec
			if progress != nil {
				progress(rec, done, total)
			}
		}
	}

	report, runErr := w.Run(ctx, targets, mode)
	if recordChan != nil {
		close(recordChan)
		producerWg.Wait()
	}
	if report == nil {
		return nil, runErr
	}
	if runErr != nil && !errors.Is(runErr, worker.ErrCancelled) {
		return report, runErr
	}

	var errs []error
	for _, path := range outputs {
		if err := output.Write(path, report); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(h.out, "results saved to %s\n", path)
		h.upload(ctx, report.RunID, path)
	}
	printSummary(h.out, report)

	return report, errors.Join(append(errs, runErr)...)
}

func (h *harvester) upload(ctx context.Context, runID, path string) {
	if h.s3 == nil {
		return
	}
	url, err := h.s3.UploadFile(context.WithoutCancel(ctx), runID, path)
	if err != nil {
		h.log.Error("failed to upload results.", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	fmt.Fprintf(h.out, "uploaded %s to %s\n", path, url)
}

func printSummary(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "\nrun %s (%s) finished in %s\n", report.RunID, report.Mode, report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  attempted: %d\n", report.Attempted)
	fmt.Fprintf(w, "  succeeded: %d\n", report.Succeeded)
	fmt.Fprintf(w, "  failed:    %d\n", report.Failed)
	fmt.Fprintf(w, "  skipped:   %d\n", report.Skipped)
	fmt.Fprintf(w, "  unique emails: %d\n", report.UniqueEmails)
	if report.Cancelled {
		fmt.Fprintln(w, "  run was cancelled before all urls were processed")
	}
}

// printProgress returns a progress callback writing one line per finished record.
func printProgress(w io.Writer) worker.ProgressFunc {
	return func(rec *model.Record, done, total int) {
		target := rec.SourceURL
		if rec.WebsiteURL != "" {
			target = rec.WebsiteURL
		}
		fmt.Fprintf(w, "[%d/%d] %s: %s\n", done, total, target, rec.Summary())
	}
}
