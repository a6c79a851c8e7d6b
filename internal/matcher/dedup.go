// Package matcher turns raw listings into comparable, scored jobs: stable
// content identity, salary extraction and relevance scoring.
package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DedupHash returns the identity of a posting: the SHA-256 of its
// normalized URL, or of "title|company" when the URL is empty.
func DedupHash(url, title, company string) string {
	normalized := strings.TrimRight(strings.ToLower(strings.TrimSpace(url)), "/")
	if normalized != "" {
		return hexSum(normalized)
	}
	key := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(company))
	return hexSum(key)
}

func hexSum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var postedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParsePostedDate reads an ISO-8601 date or timestamp. Anything else, such
// as "3 days ago", yields nil.
func ParsePostedDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, layout := range postedDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}
