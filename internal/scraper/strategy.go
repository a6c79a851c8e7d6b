// Package scraper implements board scanning: per-site extraction
// strategies, the robots policy, request pacing, keyword/exclude filtering
// and the page-bounded scan coordinator.
package scraper

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

// Strategy extracts job listings from one kind of job board.
//
// AdvancePage moves page to the next set of results and reports whether it
// did. Running out of pages is not an error; failures are logged by the
// strategy and reported as false.
type Strategy interface {
	Name() string
	ExtractJobs(ctx context.Context, page browser.Page) ([]model.RawJob, error)
	AdvancePage(ctx context.Context, page browser.Page) bool
}

// Strategy names accepted in a board's scraper_type.
const (
	Generic    = "generic"
	Greenhouse = "greenhouse"
	Lever      = "lever"
	Workday    = "workday"
)

type constructor func(baseURL string, cfg model.ScraperConfig, log *zap.Logger) Strategy

var registry = map[string]constructor{
	Generic:    newGeneric,
	Greenhouse: newGreenhouse,
	Lever:      newLever,
	Workday:    newWorkday,
}

// New builds a fresh strategy for one scan. Strategies hold pagination
// state, so an instance must not be reused across scans. Unknown names fall
// back to the generic strategy.
func New(name, baseURL string, cfg model.ScraperConfig, log *zap.Logger) Strategy {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		if name != "" {
			log.Warn("unknown scraper type, using generic", zap.String("scraper_type", name))
		}
		ctor = newGeneric
	}
	return ctor(baseURL, cfg, log)
}

// Names lists the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ─── Shared helpers ──────────────────────────────────────────────────────────

// absoluteURL resolves href against the board's base URL.
func absoluteURL(href, base string) string {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "http"):
		return href
	case strings.HasPrefix(href, "//"):
		scheme, _, _ := strings.Cut(base, "://")
		return scheme + ":" + href
	case strings.HasPrefix(href, "/"):
		scheme, rest, ok := strings.Cut(base, "://")
		if !ok {
			return href
		}
		host, _, _ := strings.Cut(rest, "/")
		return scheme + "://" + host + href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// applyCompany stamps a page-level company name onto jobs that lack one.
func applyCompany(jobs []model.RawJob, company string) {
	if company == "" {
		return
	}
	for i := range jobs {
		if jobs[i].Company == "" {
			jobs[i].Company = company
		}
	}
}

// linkJobs turns bare anchors into jobs; used when no result cards exist.
func linkJobs(links []browser.Element, base string, minTitle int) []model.RawJob {
	var jobs []model.RawJob
	for _, link := range links {
		title, err := link.Text()
		if err != nil {
			continue
		}
		href, _, err := link.Attr("href")
		if err != nil || title == "" || href == "" || len(title) <= minTitle {
			continue
		}
		jobs = append(jobs, model.RawJob{Title: title, URL: absoluteURL(href, base)})
	}
	return jobs
}

func attrOf(el browser.Element, name string) string {
	if el == nil {
		return ""
	}
	v, _, err := el.Attr(name)
	if err != nil {
		return ""
	}
	return v
}

func textOf(el browser.Element) string {
	if el == nil {
		return ""
	}
	t, err := el.Text()
	if err != nil {
		return ""
	}
	return t
}

// isDisabled reports whether a pagination control is disabled.
func isDisabled(el browser.Element) bool {
	if _, disabled, _ := el.Attr("disabled"); disabled {
		return true
	}
	return strings.Contains(attrOf(el, "class"), "disabled")
}
