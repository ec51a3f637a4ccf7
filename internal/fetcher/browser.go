package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/email-harvester/internal/model"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	browserSource = "browser"

	eventDOMContentLoaded = "DOMContentLoaded"
	eventNetworkIdle      = "networkIdle"

	textScript = `(document.body ? document.body.innerText : '') + ' ' + (document.head ? document.head.innerText : '')`
)

var ErrNavigation = errors.New("navigation failed")

type BrowserOptions struct {
	PageLoadTimeout time.Duration
	SettleTimeout   time.Duration
	UserAgent       string
	Headless        bool
	ChromePath      string
}

// BrowserFetcher renders pages in headless Chrome. Every Fetch starts its own browser process
// and tears it down before returning; nothing is shared between calls.
type BrowserFetcher struct {
	opts BrowserOptions
	log  *slog.Logger
}

func NewBrowserFetcher(opts BrowserOptions, log *slog.Logger) *BrowserFetcher {
	return &BrowserFetcher{opts: opts, log: log}
}

func (f *BrowserFetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(f.opts.UserAgent),
	)
	if f.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.opts.ChromePath))
	}

	return opts
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) *model.FetchResult {
	if err := ValidateURL(rawURL); err != nil {
		return invalid(rawURL, browserSource, err)
	}
	result := &model.FetchResult{URL: rawURL, Source: browserSource}
	startTime := time.Now()
	defer func() {
		result.Elapsed = time.Since(startTime)
		f.log.Debug("browser fetch finished.", slog.String("url", rawURL),
			slog.String("kind", result.Kind.String()), slog.Int("status_code", result.StatusCode),
			slog.Bool("render_timeout", result.RenderTimedOut), slog.Duration("elapsed", result.Elapsed))
	}()

	// Hard ceiling for the whole item: load + settle + time to read the DOM.
	itemCtx, cancelItem := context.WithTimeout(ctx, f.opts.PageLoadTimeout+f.opts.SettleTimeout+5*time.Second)
	defer cancelItem()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(itemCtx, f.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		result.Kind = model.FetchConnectionError
		result.Err = fmt.Errorf("failed to start browser: %w", err)
		return result
	}

	events := newLifecycle()
	chromedp.ListenTarget(tabCtx, events.handle)

	var loaderID cdp.LoaderID
	err := chromedp.Run(tabCtx,
		network.Enable(),
		enableLifeCycleEvents(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			navCtx, cancel := context.WithTimeout(ctx, f.opts.PageLoadTimeout)
			defer cancel()
			_, id, errorText, err := page.Navigate(rawURL).Do(navCtx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("%w: %s", ErrNavigation, errorText)
			}
			loaderID = id
			return events.wait(navCtx, loaderID, eventDOMContentLoaded)
		}),
	)
	if err != nil {
		result.StatusCode = events.status(loaderID)
		f.classifyNavigationError(result, err)
		return result
	}

	settleCtx, cancelSettle := context.WithTimeout(tabCtx, f.opts.SettleTimeout)
	if err := events.wait(settleCtx, loaderID, eventNetworkIdle); err != nil {
		result.RenderTimedOut = true
		f.log.Info("network idle not reached, continuing.", slog.String("url", rawURL))
	}
	cancelSettle()

	result.StatusCode = events.status(loaderID)
	if result.StatusCode >= http.StatusBadRequest {
		result.Kind = model.FetchHTTPError
		result.Err = errors.New(http.StatusText(result.StatusCode))
		return result
	}

	err = chromedp.Run(tabCtx,
		chromedp.Title(&result.Title),
		chromedp.Evaluate(textScript, &result.Text),
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			result.HTML, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		result.Kind = classifyTransportError(err)
		result.Err = err
		return result
	}
	result.Kind = model.FetchOK

	return result
}

func (f *BrowserFetcher) classifyNavigationError(result *model.FetchResult, err error) {
	result.Err = err
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ERR_HTTP_RESPONSE_CODE_FAILURE") && result.StatusCode != 0:
		result.Kind = model.FetchHTTPError
	case strings.Contains(msg, "TIMED_OUT"):
		result.Kind = model.FetchTimeout
	case errors.Is(err, ErrNavigation):
		result.Kind = model.FetchConnectionError
	default:
		result.Kind = classifyTransportError(err)
	}
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

// lifecycle records page lifecycle events and main document status codes per loader. Events
// can arrive before Navigate returns the loader id, so they are buffered rather than awaited.
type lifecycle struct {
	mu      sync.Mutex
	events  map[cdp.LoaderID]map[string]bool
	codes   map[cdp.LoaderID]int
	changed chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		events:  make(map[cdp.LoaderID]map[string]bool),
		codes:   make(map[cdp.LoaderID]int),
		changed: make(chan struct{}),
	}
}

func (l *lifecycle) handle(ev interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		if l.events[e.LoaderID] == nil {
			l.events[e.LoaderID] = make(map[string]bool)
		}
		l.events[e.LoaderID][e.Name] = true
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		if _, ok := l.codes[e.LoaderID]; !ok {
			l.codes[e.LoaderID] = int(e.Response.Status)
		}
	default:
		return
	}
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *lifecycle) seen(loaderID cdp.LoaderID, name string) (bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[loaderID][name], l.changed
}

func (l *lifecycle) wait(ctx context.Context, loaderID cdp.LoaderID, name string) error {
	for {
		ok, changed := l.seen(loaderID, name)
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *lifecycle) status(loaderID cdp.LoaderID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codes[loaderID]
}
