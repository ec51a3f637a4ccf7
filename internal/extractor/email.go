// Package extractor pulls email addresses out of page text.
package extractor

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Retina asset names such as logo@2x.png look like addresses.
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Extract returns the unique emails found in text in first-seen order. Addresses that differ
// only in case are treated as one; the first spelling wins.
func Extract(text string) []string {
	return ExtractAll(text)
}

// ExtractAll is Extract over several texts scanned left to right as one.
func ExtractAll(texts ...string) []string {
	emails := make([]string, 0)
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, match := range emailRegex.FindAllString(text, -1) {
			key := strings.ToLower(match)
			if isAsset(key) {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			emails = append(emails, match)
		}
	}

	return emails
}

func isAsset(email string) bool {
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}
