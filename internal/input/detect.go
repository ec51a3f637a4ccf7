package input

import (
	"fmt"
	"strings"

	"github.com/IliaW/email-harvester/internal/model"
	"github.com/IliaW/email-harvester/internal/resolver"
)

const sampleSize = 50

// headerSynonyms in priority order.
var headerSynonyms = []string{"href", "link", "website", "url", "maps", "google"}

// DetectURLColumn picks the column holding the target URLs:
//  1. the first header matching a synonym (in synonym priority, then column order) whose sampled
//     cells contain at least one URL for mode;
//  2. otherwise the column with the highest URL match rate over its first 50 non-empty cells,
//     the leftmost one on ties;
//  3. otherwise ErrNoURLColumn.
func DetectURLColumn(header []string, rows [][]string, mode model.Mode) (int, error) {
	match := resolver.IsWebURL
	if mode == model.MapsDerived {
		match = resolver.IsMapsURL
	}

	rates := make([]float64, len(header))
	for col := range header {
		rates[col] = matchRate(rows, col, match)
	}

	for _, synonym := range headerSynonyms {
		for col, name := range header {
			if strings.Contains(strings.ToLower(name), synonym) && rates[col] > 0 {
				return col, nil
			}
		}
	}

	best := -1
	for col, rate := range rates {
		if rate > 0 && (best < 0 || rate > rates[best]) {
			best = col
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: checked %d columns for %s urls", ErrNoURLColumn, len(header), mode)
	}

	return best, nil
}

func matchRate(rows [][]string, col int, match func(string) bool) float64 {
	sampled, matched := 0, 0
	for _, row := range rows {
		if sampled == sampleSize {
			break
		}
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		sampled++
		if match(row[col]) {
			matched++
		}
	}
	if sampled == 0 {
		return 0
	}

	return float64(matched) / float64(sampled)
}
