// Package output writes batch results as CSV, XLSX or JSON and reads CSV/XLSX results back.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/email-harvester/internal/model"
)

const (
	ColOriginalURL = "Original_URL"
	ColWebsiteURL  = "Website_URL"
	ColDomain      = "Domain"
	ColTitle       = "Title"
	ColEmails      = "Found_Emails"
	ColStatus      = "Status"
	ColReason      = "Reason"
	ColDurationMs  = "Duration_ms"

	emailSeparator = ", "
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")

	resultColumns = []string{
		ColOriginalURL, ColWebsiteURL, ColDomain, ColTitle, ColEmails, ColStatus, ColReason, ColDurationMs,
	}
)

// Write stores the report at path in the format given by its extension.
func Write(path string, report *model.Report) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		err = writeCSV(path, report.Records)
	case ".xlsx":
		err = writeXLSX(path, report.Records)
	case ".json":
		err = writeJSON(path, report)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Info("results saved.", slog.String("path", path), slog.Int("records", len(report.Records)))

	return nil
}

// ReadFile parses a CSV or XLSX file produced by Write. Columns before the trailing result
// columns come back as record fields.
func ReadFile(path string) ([]*model.Record, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return parseRows(rows)
}

// header lists the input field names by position followed by the result columns. Names are
// kept as-is, duplicates included; rows are matched to the header by position, never by name.
func header(records []*model.Record) []string {
	var names []string
	for _, rec := range records {
		for i := len(names); i < len(rec.Fields); i++ {
			names = append(names, rec.Fields[i].Name)
		}
	}

	return append(names, resultColumns...)
}

func row(header []string, rec *model.Record) []string {
	nFields := len(header) - len(resultColumns)
	out := make([]string, nFields, len(header))
	for i := 0; i < nFields && i < len(rec.Fields); i++ {
		out[i] = rec.Fields[i].Value
	}

	return append(out,
		rec.SourceURL,
		rec.WebsiteURL,
		rec.Domain,
		rec.Title,
		strings.Join(rec.Emails, emailSeparator),
		string(rec.Status),
		rec.Reason,
		strconv.FormatInt(rec.Duration.Milliseconds(), 10),
	)
}

// parseRows expects the result columns, in order, at the end of the header. Everything before
// them is an input field, so an input column named like a result column survives the round trip.
func parseRows(rows [][]string) ([]*model.Record, error) {
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	head := rows[0]
	nFields := len(head) - len(resultColumns)
	if nFields < 0 {
		return nil, fmt.Errorf("missing column %q", resultColumns[len(head)])
	}
	for i, col := range resultColumns {
		if head[nFields+i] != col {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	records := make([]*model.Record, 0, len(rows)-1)
	for i, r := range rows[1:] {
		cell := func(j int) string {
			if j < len(r) {
				return r[j]
			}
			return ""
		}
		result := func(k int) string { return cell(nFields + k) }
		rec := &model.Record{
			Index:      i,
			SourceURL:  result(0),
			WebsiteURL: result(1),
			Domain:     result(2),
			Title:      result(3),
			Emails:     []string{},
			Status:     model.Status(result(5)),
			Reason:     result(6),
		}
		if emails := result(4); emails != "" {
			rec.Emails = strings.Split(emails, emailSeparator)
		}
		if ms := result(7); ms != "" {
			n, err := strconv.ParseInt(ms, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", i+2, ColDurationMs, ms, err)
			}
			rec.Duration = time.Duration(n) * time.Millisecond
		}
		for j := 0; j < nFields; j++ {
			rec.Fields = append(rec.Fields, model.Field{Name: head[j], Value: cell(j)})
		}
		records = append(records, rec)
	}

	return records, nil
}
