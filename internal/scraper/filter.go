package scraper

import (
	"strings"

	"github.com/TRA3H/hunter/internal/model"
)

// ContainsExcluded returns true if any exclude term appears
// (case-insensitive) anywhere in the combined title + company + description.
func ContainsExcluded(job model.RawJob, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(job.Title + " " + job.Company + " " + job.Description)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// MatchesKeywords reports whether any keyword appears in title +
// description. A board without keywords keeps everything.
func MatchesKeywords(job model.RawJob, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(job.Title + " " + job.Description)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Filter applies the board's keyword and exclude lists, returning the kept
// jobs and how many were dropped.
func Filter(jobs []model.RawJob, board model.SourceBoard) (kept []model.RawJob, dropped int) {
	for _, job := range jobs {
		if !MatchesKeywords(job, board.Keywords) || ContainsExcluded(job, board.ExcludeTerms) {
			dropped++
			continue
		}
		kept = append(kept, job)
	}
	return kept, dropped
}
