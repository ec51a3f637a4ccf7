package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IliaW/email-harvester/internal/model"
	"github.com/IliaW/email-harvester/internal/resolver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves canned pages and tracks how many fetches run at once.
type fakeFetcher struct {
	pages   map[string]string
	titles  map[string]string
	hold    time.Duration
	panicOn string

	mu       sync.Mutex
	fetched  []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) *model.FetchResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if url == f.panicOn {
		panic("boom")
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	body, ok := f.pages[url]
	if !ok {
		return &model.FetchResult{URL: url, Kind: model.FetchHTTPError, StatusCode: 404, Source: "fake"}
	}

	return &model.FetchResult{URL: url, Kind: model.FetchOK, StatusCode: 200, HTML: body, Title: f.titles[url], Source: "fake"}
}

func (f *fakeFetcher) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(_ context.Context, mapsURL string) (string, error) {
	if website, ok := r[mapsURL]; ok {
		return website, nil
	}
	return "", resolver.ErrWebsiteNotFound
}

func newWorker(f *fakeFetcher, concurrency int) *ScrapeWorker {
	return &ScrapeWorker{
		Fetcher:        f,
		MaxConcurrency: concurrency,
		Log:            discardLogger(),
	}
}

func TestRunDirect(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://a.example": "contact a@a.example or A@A.example",
		"https://b.example": "nothing here",
		"https://c.example": "sales@c.example, info@c.example",
	}, titles: map[string]string{"https://a.example": "A Company"}}
	targets := model.NewTargets([]string{"https://a.example", "https://b.example", "not a url", "https://c.example", "https://gone.example"})

	report, err := newWorker(f, 3).Run(context.Background(), targets, model.Direct)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 5 || report.Succeeded != 3 || report.Failed != 2 || report.Skipped != 0 {
		t.Errorf("counters = %d/%d/%d/%d, want 5/3/2/0",
			report.Attempted, report.Succeeded, report.Failed, report.Skipped)
	}
	if report.UniqueEmails != 3 {
		t.Errorf("UniqueEmails = %d, want 3", report.UniqueEmails)
	}
	for i, rec := range report.Records {
		if rec.Index != i || rec.SourceURL != targets[i].URL {
			t.Errorf("record %d = %d %q, want input order", i, rec.Index, rec.SourceURL)
		}
	}
	if got := report.Records[1]; !got.Succeeded() || got.Summary() != "no emails found" {
		t.Errorf("page without emails = %v %q, want success", got.Status, got.Summary())
	}
	if got := report.Records[2]; got.Succeeded() || got.Reason == "" {
		t.Errorf("invalid url record = %v %q, want failure with reason", got.Status, got.Reason)
	}
	if got := report.Records[4]; got.Reason != "http error: status 404" {
		t.Errorf("missing page reason = %q", got.Reason)
	}
	if got := report.Records[0]; got.Domain != "a.example" || got.Title != "A Company" {
		t.Errorf("record 0 domain/title = %q/%q, want a.example/A Company", got.Domain, got.Title)
	}
	if got := report.Records[4]; got.Domain != "gone.example" || got.Title != "" {
		t.Errorf("failed record domain/title = %q/%q, want gone.example/empty", got.Domain, got.Title)
	}
}

func TestRunConcurrencyLimit(t *testing.T) {
	t.Parallel()

	pages := make(map[string]string)
	var urls []string
	for _, host := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		u := "https://" + host + ".example"
		pages[u] = "x@" + host + ".example"
		urls = append(urls, u)
	}
	f := &fakeFetcher{pages: pages, hold: 20 * time.Millisecond}

	report, err := newWorker(f, 2).Run(context.Background(), model.NewTargets(urls), model.Direct)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak := f.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if report.Succeeded != len(urls) {
		t.Errorf("Succeeded = %d, want %d", report.Succeeded, len(urls))
	}
}

func TestRunPanicIsolated(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		pages:   map[string]string{"https://ok.example": "hi@ok.example"},
		panicOn: "https://bad.example",
	}
	targets := model.NewTargets([]string{"https://bad.example", "https://ok.example"})

	report, err := newWorker(f, 2).Run(context.Background(), targets, model.Direct)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Records[0].Succeeded() || report.Records[0].Reason != "internal error: boom" {
		t.Errorf("panicking record = %v %q", report.Records[0].Status, report.Records[0].Reason)
	}
	if !report.Records[1].Succeeded() {
		t.Errorf("second record should succeed, got %q", report.Records[1].Reason)
	}
}

func TestRunMapsDerived(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://bakery.example": "orders@bakery.example",
	}}
	w := newWorker(f, 2)
	w.Resolver = fakeResolver{"https://maps.google.com/?cid=1": "https://bakery.example"}
	targets := []model.Target{
		{Index: 0, URL: "https://maps.google.com/?cid=1", Fields: []model.Field{{Name: "Name", Value: "Bakery"}}},
		{Index: 1, URL: "https://maps.google.com/?cid=2"},
	}

	report, err := w.Run(context.Background(), targets, model.MapsDerived)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	found := report.Records[0]
	if found.WebsiteURL != "https://bakery.example" || len(found.Emails) != 1 || found.Fields[0].Value != "Bakery" {
		t.Errorf("resolved record = %+v", found)
	}
	missing := report.Records[1]
	if missing.Succeeded() || missing.Reason != "no website found" {
		t.Errorf("unresolved record = %v %q", missing.Status, missing.Reason)
	}
	for _, u := range f.fetchedURLs() {
		if u == "https://maps.google.com/?cid=2" {
			t.Error("listing page of unresolved target was fetched for extraction")
		}
	}
}

func TestRunMapsWithoutResolver(t *testing.T) {
	t.Parallel()

	_, err := newWorker(&fakeFetcher{}, 1).Run(context.Background(), nil, model.MapsDerived)
	if err == nil {
		t.Fatal("expected error without resolver")
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	pages := make(map[string]string)
	var urls []string
	for _, host := range []string{"a", "b", "c", "d", "e", "f"} {
		u := "https://" + host + ".example"
		pages[u] = "x@" + host + ".example"
		urls = append(urls, u)
	}
	f := &fakeFetcher{pages: pages}
	ctx, cancel := context.WithCancel(context.Background())
	w := newWorker(f, 1)
	w.Delay = 50 * time.Millisecond
	w.Progress = func(_ *model.Record, done, _ int) {
		if done == 2 {
			cancel()
		}
	}

	report, err := w.Run(ctx, model.NewTargets(urls), model.Direct)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if !report.Cancelled {
		t.Error("report not marked cancelled")
	}
	if report.Attempted+report.Skipped != len(urls) || report.Skipped == 0 {
		t.Errorf("attempted %d skipped %d of %d", report.Attempted, report.Skipped, len(urls))
	}
	for _, rec := range report.Records {
		if !rec.Succeeded() {
			t.Errorf("in-flight record %q failed: %q", rec.SourceURL, rec.Reason)
		}
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{}}
	urls := []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"}
	var got []int
	w := newWorker(f, 4)
	w.Progress = func(_ *model.Record, done, total int) {
		if total != len(urls) {
			t.Errorf("total = %d, want %d", total, len(urls))
		}
		got = append(got, done)
	}

	if _, err := w.Run(context.Background(), model.NewTargets(urls), model.Direct); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, done := range got {
		if done != i+1 {
			t.Fatalf("progress sequence = %v", got)
		}
	}
	if len(got) != len(urls) {
		t.Errorf("progress called %d times, want %d", len(got), len(urls))
	}
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	report, err := newWorker(&fakeFetcher{}, 3).Run(context.Background(), nil, model.Direct)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Total != 0 || len(report.Records) != 0 || report.Skipped != 0 {
		t.Errorf("empty report = %+v", report)
	}
}

func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]string{
		"https://a.example": "b@a.example a@a.example b@a.example",
		"https://b.example": "c@b.example",
	}}
	targets := model.NewTargets([]string{"https://a.example", "https://b.example"})
	w := newWorker(f, 2)
	w.RunID = "fixed"

	first, err := w.Run(context.Background(), targets, model.Direct)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := w.Run(context.Background(), targets, model.Direct)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first.RunID != "fixed" || second.RunID != "fixed" {
		t.Errorf("run ids = %q, %q", first.RunID, second.RunID)
	}
	for i := range first.Records {
		if !reflect.DeepEqual(first.Records[i].Emails, second.Records[i].Emails) {
			t.Errorf("record %d emails differ: %v vs %v", i, first.Records[i].Emails, second.Records[i].Emails)
		}
	}
	if want := []string{"b@a.example", "a@a.example"}; !reflect.DeepEqual(first.Records[0].Emails, want) {
		t.Errorf("emails = %v, want %v", first.Records[0].Emails, want)
	}
}

func TestRunCancelledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		pages: map[string]string{
			"https://a.example": "x@a.example",
			"https://b.example": "x@b.example",
			"https://c.example": "x@c.example",
		},
		hold: 300 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)
	targets := model.NewTargets([]string{"https://a.example", "https://b.example", "https://c.example"})

	report, err := newWorker(f, 1).Run(ctx, targets, model.Direct)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if got := f.fetchedURLs(); !reflect.DeepEqual(got, []string{"https://a.example"}) {
		t.Errorf("fetched = %v, want only the in-flight target", got)
	}
	if report.Attempted != 1 || report.Skipped != 2 {
		t.Errorf("attempted %d skipped %d, want 1 and 2", report.Attempted, report.Skipped)
	}
	if !report.Records[0].Succeeded() {
		t.Errorf("in-flight record failed: %q", report.Records[0].Reason)
	}
}
