// Package fetcher retrieves page content for email extraction. Two live strategies exist: a
// plain HTTP GET through a colly collector and a rendered fetch through a headless Chrome
// driven by chromedp. Failures are never returned as errors; they are encoded in the
// FetchResult kind so a single bad URL cannot stop a batch.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/IliaW/email-harvester/internal/model"
)

// Fetcher returns the content of a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) *model.FetchResult
}

var (
	ErrMissingScheme = errors.New("url has no http or https scheme")
	ErrMissingHost   = errors.New("url has no host")
)

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrMissingScheme, rawURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: %q", ErrMissingHost, rawURL)
	}

	return nil
}

// NormalizeURL trims the input and adds https:// when no scheme was typed.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	return rawURL
}

// Domain returns the host (with port, if any) of rawURL, or "" when it cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Host
}

func invalid(rawURL, source string, err error) *model.FetchResult {
	return &model.FetchResult{URL: rawURL, Source: source, Kind: model.FetchInvalidURL, Err: err}
}

// classifyTransportError maps a transport level error to a fetch kind.
func classifyTransportError(err error) model.FetchKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return model.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FetchTimeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return model.FetchTimeout
	}

	return model.FetchConnectionError
}

// IsRetryable reports whether another strategy may succeed where this result failed.
func IsRetryable(r *model.FetchResult) bool {
	switch r.Kind {
	case model.FetchTimeout, model.FetchConnectionError, model.FetchHTTPError:
		return true
	default:
		return false
	}
}
