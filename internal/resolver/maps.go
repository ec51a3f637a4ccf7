// Package resolver finds the business website linked from a Google Maps listing.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/IliaW/email-harvester/internal/fetcher"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

var (
	ErrWebsiteNotFound = errors.New("no website found")
	ErrListingFetch    = errors.New("maps listing fetch failed")

	textURLRegex = regexp.MustCompile(`https?://[^\s<>"']+`)

	// Selectors in priority order. The first qualifying link wins.
	websiteSelectors = []struct {
		selector string
		attr     string
		label    string
	}{
		{selector: `a[data-item-id="authority"]`, attr: "href"},
		{selector: `a[aria-label]`, attr: "href", label: "website"},
		{selector: `a[href^="http"]`, attr: "href"},
		{selector: `[data-value^="http"]`, attr: "data-value"},
		{selector: `a[target="_blank"]`, attr: "href"},
	}

	// Registrable domain labels that belong to the listing platform or the web itself.
	internalLabels = map[string]struct{}{
		"google":            {},
		"gstatic":           {},
		"googleapis":        {},
		"googleusercontent": {},
		"ggpht":             {},
		"goo":               {},
		"googletagmanager":  {},
		"schema":            {},
		"w3":                {},
	}
)

// WebsiteCache remembers resolved websites between lookups.
type WebsiteCache interface {
	GetWebsite(mapsURL string) (string, bool)
	SaveWebsite(mapsURL, website string)
}

type Resolver struct {
	fetcher fetcher.Fetcher
	cache   WebsiteCache
	log     *slog.Logger
}

// New returns a resolver that loads listings through f. cache may be nil.
func New(f fetcher.Fetcher, cache WebsiteCache, log *slog.Logger) *Resolver {
	return &Resolver{fetcher: f, cache: cache, log: log}
}

// Resolve returns the website of the listing at mapsURL or ErrWebsiteNotFound. A listing that
// cannot be loaded yields an error wrapping ErrListingFetch.
func (r *Resolver) Resolve(ctx context.Context, mapsURL string) (string, error) {
	if r.cache != nil {
		if website, ok := r.cache.GetWebsite(mapsURL); ok {
			r.log.Debug("website resolved from cache.", slog.String("maps_url", mapsURL))
			return website, nil
		}
	}

	result := r.fetcher.Fetch(ctx, mapsURL)
	if !result.OK() {
		return "", fmt.Errorf("%w: %s", ErrListingFetch, result.Reason())
	}
	website, ok := FindWebsite(result.HTML, result.Text)
	if !ok {
		return "", ErrWebsiteNotFound
	}
	r.log.Info("found website.", slog.String("maps_url", mapsURL), slog.String("website", website))
	if r.cache != nil {
		r.cache.SaveWebsite(mapsURL, website)
	}

	return website, nil
}

// FindWebsite looks for the outbound business link in listing markup, falling back to the
// first external URL in the visible text.
func FindWebsite(html, text string) (string, bool) {
	if html != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err == nil {
			for _, s := range websiteSelectors {
				var found string
				doc.Find(s.selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
					if s.label != "" {
						label, _ := el.Attr("aria-label")
						if !strings.Contains(strings.ToLower(label), s.label) {
							return true
						}
					}
					value, _ := el.Attr(s.attr)
					if candidate, ok := externalURL(value); ok {
						found = candidate
						return false
					}
					return true
				})
				if found != "" {
					return found, true
				}
			}
		}
	}

	if text == "" {
		return "", false
	}
	for _, token := range textURLRegex.FindAllString(text, -1) {
		if candidate, ok := externalURL(strings.TrimRight(token, ".,;)")); ok {
			return candidate, true
		}
	}

	return "", false
}

// externalURL unwraps google redirect links and rejects platform-internal hosts.
func externalURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", false
	}
	if isInternalHost(u.Hostname()) {
		if u.Path == "/url" {
			if target := u.Query().Get("q"); target != "" {
				return externalURL(target)
			}
			if target := u.Query().Get("url"); target != "" {
				return externalURL(target)
			}
		}
		return "", false
	}

	return u.String(), true
}

func isInternalHost(host string) bool {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		domain = strings.ToLower(host)
	}
	label, _, _ := strings.Cut(domain, ".")
	_, ok := internalLabels[label]

	return ok
}

// IsMapsURL reports whether s points at a Google Maps listing or search.
func IsMapsURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	return strings.Contains(s, "google.com/maps") || strings.Contains(s, "maps.google.") ||
		strings.Contains(s, "maps.app.goo.gl") || strings.Contains(s, "goo.gl/maps")
}

// IsWebURL reports whether s looks like an absolute http(s) URL.
func IsWebURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
