package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how targets are turned into pages to scrape.
type Mode int

const (
	Direct Mode = iota
	MapsDerived
)

func (m Mode) String() string {
	return [...]string{"direct", "maps"}[m]
}

// Field is one cell of the original input row.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Target is the unit of work.
type Target struct {
	Index  int     `json:"index"`
	URL    string  `json:"url"`
	Fields []Field `json:"fields,omitempty"`
}

// NewTargets wraps plain URLs into indexed targets. Blank entries are dropped.
func NewTargets(urls []string) []Target {
	targets := make([]Target, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		targets = append(targets, Target{Index: len(targets), URL: u})
	}

	return targets
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is the outcome for one target.
type Record struct {
	Index      int           `json:"index"`
	SourceURL  string        `json:"source_url"`
	WebsiteURL string        `json:"website_url,omitempty"`
	Domain     string        `json:"domain,omitempty"`
	Title      string        `json:"title,omitempty"`
	Emails     []string      `json:"emails"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source,omitempty"`
	Fields     []Field       `json:"fields,omitempty"`
}

func (r *Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Summary is the short status line shown to the user.
func (r *Record) Summary() string {
	if !r.Succeeded() {
		return r.Reason
	}
	if len(r.Emails) == 0 {
		return "no emails found"
	}

	return fmt.Sprintf("%d emails found", len(r.Emails))
}
