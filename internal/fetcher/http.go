package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/IliaW/email-harvester/internal/model"
	"github.com/gocolly/colly"
)

const httpSource = "http"

var errNoResponse = errors.New("no response received")

// HTTPFetcher downloads raw HTML with a colly collector.
type HTTPFetcher struct {
	timeout   time.Duration
	userAgent string
	log       *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, log *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{timeout: timeout, userAgent: userAgent, log: log}
}

// Fetch issues one GET. colly has no context support, so the request timeout is the only bound
// on an in-flight request; ctx is checked before the request starts.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) *model.FetchResult {
	if err := ValidateURL(rawURL); err != nil {
		return invalid(rawURL, httpSource, err)
	}
	result := &model.FetchResult{URL: rawURL, Source: httpSource}
	if err := ctx.Err(); err != nil {
		result.Kind = classifyTransportError(err)
		result.Err = err
		return result
	}

	c := colly.NewCollector()
	c.SetRequestTimeout(f.timeout)
	c.UserAgent = f.userAgent
	// Hand every status to OnResponse; colly otherwise routes 203-299 to OnError without a body.
	c.ParseHTTPErrorResponse = true

	var (
		fetchErr  error
		responded bool
	)
	c.OnResponse(func(resp *colly.Response) {
		responded = true
		result.StatusCode = resp.StatusCode
		result.HTML = string(resp.Body)
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if result.Title == "" {
			result.Title = strings.TrimSpace(e.Text)
		}
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			result.StatusCode = resp.StatusCode
		}
		fetchErr = err
	})

	t := time.Now()
	err := c.Visit(rawURL)
	result.Elapsed = time.Since(t)
	if fetchErr == nil {
		fetchErr = err
	}

	switch {
	case responded && result.StatusCode >= http.StatusOK && result.StatusCode < http.StatusMultipleChoices:
		result.Kind = model.FetchOK
	case result.StatusCode != 0 && (result.StatusCode < http.StatusOK || result.StatusCode >= http.StatusMultipleChoices):
		result.Kind = model.FetchHTTPError
		result.Err = errors.New(http.StatusText(result.StatusCode))
	case fetchErr != nil:
		result.Kind = classifyTransportError(fetchErr)
		result.Err = fetchErr
	default:
		result.Kind = model.FetchConnectionError
		result.Err = errNoResponse
	}
	f.log.Debug("http fetch finished.", slog.String("url", rawURL), slog.String("kind", result.Kind.String()),
		slog.Int("status_code", result.StatusCode), slog.Duration("elapsed", result.Elapsed))

	return result
}
