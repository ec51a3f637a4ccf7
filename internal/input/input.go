// Package input turns user supplied files into ordered lists of targets.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/IliaW/email-harvester/internal/model"
	"github.com/IliaW/email-harvester/internal/resolver"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrNoURLColumn       = errors.New("no url column found")
	ErrNoTargets         = errors.New("no urls found in input")
)

// Kind is the closed set of input shapes.
type Kind int

const (
	KindText Kind = iota
	KindTabular
	KindDocument
)

func (k Kind) String() string {
	return [...]string{"text", "tabular", "document"}[k]
}

// Table is a parsed input file. Text and document inputs produce a single column without a
// meaningful header.
type Table struct {
	Kind   Kind
	Header []string
	Rows   [][]string
}

// Load parses the file at path, choosing the reader by extension.
func Load(path string) (*Table, error) {
	var (
		table *Table
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		table, err = readText(path)
	case ".csv":
		table, err = readCSV(path)
	case ".xlsx":
		table, err = readXLSX(path)
	case ".docx":
		table, err = readDocx(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	slog.Debug("input file loaded.", slog.String("path", path), slog.String("kind", table.Kind.String()),
		slog.Int("rows", len(table.Rows)))

	return table, nil
}

// Targets converts the table into indexed targets for mode. Tabular rows keep their cells as
// fields so they can be written back next to the results.
func (t *Table) Targets(mode model.Mode) ([]model.Target, error) {
	col := 0
	if t.Kind == KindTabular {
		var err error
		if col, err = DetectURLColumn(t.Header, t.Rows, mode); err != nil {
			return nil, err
		}
	}

	targets := make([]model.Target, 0, len(t.Rows))
	skipped := 0
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		u := strings.TrimSpace(row[col])
		if u == "" {
			continue
		}
		// Only Maps links can be resolved to a website; "n/a" and stray URLs are left out.
		if mode == model.MapsDerived && !resolver.IsMapsURL(u) {
			skipped++
			continue
		}
		target := model.Target{Index: len(targets), URL: u}
		if t.Kind == KindTabular {
			target.Fields = t.fields(row)
		}
		targets = append(targets, target)
	}
	if skipped > 0 {
		slog.Warn("skipped cells that are not maps links.", slog.Int("count", skipped))
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	return targets, nil
}

func (t *Table) fields(row []string) []model.Field {
	fields := make([]model.Field, len(t.Header))
	for i, name := range t.Header {
		fields[i].Name = name
		if i < len(row) {
			fields[i].Value = row[i]
		}
	}

	return fields
}

// LoadTargets is Load followed by Targets.
func LoadTargets(path string, mode model.Mode) ([]model.Target, error) {
	table, err := Load(path)
	if err != nil {
		return nil, err
	}

	return table.Targets(mode)
}

// padRows makes every row as wide as the header.
func padRows(header []string, rows [][]string) [][]string {
	for i, row := range rows {
		if len(row) < len(header) {
			rows[i] = append(row, make([]string, len(header)-len(row))...)
		}
	}

	return rows
}
