package model

import (
	"fmt"
	"strings"
	"time"
)

// FetchKind tags the outcome of a single page fetch.
type FetchKind int

const (
	FetchOK FetchKind = iota
	FetchTimeout
	FetchConnectionError
	FetchHTTPError
	FetchInvalidURL
)

func (k FetchKind) String() string {
	return [...]string{"ok", "timeout", "connection error", "http error", "invalid url"}[k]
}

// FetchResult is produced once per fetch and not modified afterwards.
type FetchResult struct {
	URL        string
	Kind       FetchKind
	StatusCode int
	HTML       string
	Text       string
	Title      string
	Elapsed    time.Duration
	Source     string
	Err        error
	// RenderTimedOut is set when the page never reached network idle within the settle window.
	// The content captured at that point is still used.
	RenderTimedOut bool
}

func (r *FetchResult) OK() bool {
	return r.Kind == FetchOK
}

// Content returns everything extraction should look at: rendered text first, then markup.
func (r *FetchResult) Content() string {
	switch {
	case r.Text == "":
		return r.HTML
	case r.HTML == "" || r.HTML == r.Text:
		return r.Text
	default:
		return r.Text + "\n" + r.HTML
	}
}

// Reason is the human-readable failure description stored in a Record.
func (r *FetchResult) Reason() string {
	switch r.Kind {
	case FetchOK:
		return ""
	case FetchHTTPError:
		return fmt.Sprintf("http error: status %d", r.StatusCode)
	}
	if r.Err == nil {
		return r.Kind.String()
	}
	msg := r.Err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}

	return r.Kind.String() + ": " + strings.TrimSpace(msg)
}
