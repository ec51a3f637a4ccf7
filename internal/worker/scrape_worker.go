// Package worker runs a batch of targets through fetch, resolve and extract with bounded
// concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IliaW/email-harvester/internal/extractor"
	"github.com/IliaW/email-harvester/internal/fetcher"
	"github.com/IliaW/email-harvester/internal/model"
	"github.com/IliaW/email-harvester/internal/resolver"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrCancelled = errors.New("batch cancelled")

// WebsiteResolver turns a Maps listing URL into the business website.
type WebsiteResolver interface {
	Resolve(ctx context.Context, mapsURL string) (string, error)
}

// ProgressFunc is called once per completed record. Calls are serialized and done increases
// by one on every call.
type ProgressFunc func(rec *model.Record, done, total int)

type ScrapeWorker struct {
	RunID          string // generated when empty
	Fetcher        fetcher.Fetcher
	Resolver       WebsiteResolver
	MaxConcurrency int
	Delay          time.Duration
	Progress       ProgressFunc
	Log            *slog.Logger
}

// Run processes targets and returns the report in input order. Per-target failures become
// failed records. When ctx is cancelled no new targets are dispatched, in-flight ones finish
// on their own timeouts and the partial report is returned together with ErrCancelled.
func (w *ScrapeWorker) Run(ctx context.Context, targets []model.Target, mode model.Mode) (*model.Report, error) {
	if mode == model.MapsDerived && w.Resolver == nil {
		return nil, errors.New("maps mode requires a website resolver")
	}
	limit := max(w.MaxConcurrency, 1)
	startTime := time.Now()
	runID := w.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	report := model.NewReport(runID, mode, len(targets))
	w.Log.Info("starting batch.", slog.String("run_id", report.RunID), slog.String("mode", mode.String()),
		slog.Int("targets", len(targets)), slog.Int("concurrency", limit), slog.Duration("delay", w.Delay))

	var mu sync.Mutex
	done := 0
	collect := func(rec *model.Record) {
		mu.Lock()
		defer mu.Unlock()
		report.Add(rec)
		done++
		if w.Progress != nil {
			w.Progress(rec, done, len(targets))
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if w.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(w.Delay), 1)
	}
	// In-flight items are not interrupted by a stop request.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(limit)
	cancelled := false
	var stopped atomic.Bool
	for _, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		// g.Go blocks while every slot is busy, so a stop may arrive before the target starts.
		g.Go(func() error {
			if ctx.Err() != nil {
				stopped.Store(true)
				return nil
			}
			collect(w.process(workCtx, target, mode))
			return nil
		})
	}
	_ = g.Wait()

	cancelled = cancelled || stopped.Load()
	report.Cancelled = cancelled
	report.Finalize(time.Since(startTime))
	w.Log.Info("batch finished.", slog.String("run_id", report.RunID), slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded), slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped), slog.Int("unique_emails", report.UniqueEmails),
		slog.Duration("elapsed", report.Elapsed))
	if cancelled {
		return report, ErrCancelled
	}

	return report, nil
}

// process handles one target from start to finish. A panic is turned into a failed record.
func (w *ScrapeWorker) process(ctx context.Context, target model.Target, mode model.Mode) (rec *model.Record) {
	startTime := time.Now()
	rec = &model.Record{
		Index:     target.Index,
		SourceURL: target.URL,
		Fields:    target.Fields,
		Emails:    []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.String("url", target.URL), slog.Any("err", r))
			rec.Emails = []string{}
			rec.Status = model.StatusFailed
			rec.Reason = fmt.Sprintf("internal error: %v", r)
		}
		rec.Duration = time.Since(startTime)
	}()

	pageURL := target.URL
	if mode == model.MapsDerived {
		website, err := w.Resolver.Resolve(ctx, target.URL)
		if err != nil {
			w.Log.Warn("no website found.", slog.String("maps_url", target.URL), slog.String("err", err.Error()))
			rec.Status = model.StatusFailed
			rec.Reason = resolver.ErrWebsiteNotFound.Error()
			return rec
		}
		rec.WebsiteURL = website
		pageURL = website
	}
	rec.Domain = fetcher.Domain(pageURL)

	result := w.Fetcher.Fetch(ctx, pageURL)
	rec.Source = result.Source
	rec.Title = result.Title
	if !result.OK() {
		w.Log.Warn("scraping failed.", slog.String("url", pageURL), slog.String("reason", result.Reason()))
		rec.Status = model.StatusFailed
		rec.Reason = result.Reason()
		return rec
	}

	rec.Emails = extractor.Extract(result.Content())
	rec.Status = model.StatusSuccess
	if result.RenderTimedOut {
		rec.Reason = "network idle not reached"
	}
	if len(rec.Emails) > 0 {
		w.Log.Info("found emails.", slog.String("url", pageURL), slog.Int("count", len(rec.Emails)))
	} else {
		w.Log.Info("no emails found.", slog.String("url", pageURL))
	}

	return rec
}
