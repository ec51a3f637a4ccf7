package model

import (
	"sort"
	"strings"
	"time"
)

// Report aggregates the records of one batch run.
type Report struct {
	RunID        string        `json:"run_id"`
	Mode         string        `json:"mode"`
	Total        int           `json:"total"`
	Attempted    int           `json:"attempted"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	UniqueEmails int           `json:"unique_emails"`
	Cancelled    bool          `json:"cancelled"`
	Elapsed      time.Duration `json:"elapsed"`
	Records      []*Record     `json:"records"`

	seen map[string]struct{}
}

func NewReport(runID string, mode Mode, total int) *Report {
	return &Report{
		RunID:   runID,
		Mode:    mode.String(),
		Total:   total,
		Records: make([]*Record, 0, total),
		seen:    make(map[string]struct{}),
	}
}

// Add appends a completed record and updates the counters. Not safe for concurrent use.
func (r *Report) Add(rec *Record) {
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	r.Records = append(r.Records, rec)
	r.Attempted++
	if rec.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
	}
	for _, e := range rec.Emails {
		key := strings.ToLower(e)
		if _, ok := r.seen[key]; !ok {
			r.seen[key] = struct{}{}
			r.UniqueEmails++
		}
	}
}

// Finalize restores input order and records the number of targets never dispatched.
func (r *Report) Finalize(elapsed time.Duration) {
	sort.SliceStable(r.Records, func(i, j int) bool {
		return r.Records[i].Index < r.Records[j].Index
	})
	r.Skipped = r.Total - r.Attempted
	r.Elapsed = elapsed
}

// Emails lists every unique email of the run in record order.
func (r *Report) Emails() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, rec := range r.Records {
		for _, e := range rec.Emails {
			key := strings.ToLower(e)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, e)
		}
	}

	return all
}
