package scraper

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

const (
	greenhouseSections = "section.level-0, .opening"
	greenhouseAlt      = "[data-mapped='true'] .opening, .job-post"
	greenhouseLinks    = "a[href*='/jobs/']"
	greenhouseCompany  = ".company-name, #header h1, .app-title"
)

// greenhouse reads boards.greenhouse.io style listings. They render every
// opening on one page, so there is never a next page.
type greenhouse struct {
	baseURL string
	log     *zap.Logger
}

func newGreenhouse(baseURL string, _ model.ScraperConfig, log *zap.Logger) Strategy {
	return &greenhouse{baseURL: baseURL, log: log.With(zap.String("strategy", Greenhouse))}
}

func (g *greenhouse) Name() string { return Greenhouse }

func (g *greenhouse) ExtractJobs(_ context.Context, page browser.Page) ([]model.RawJob, error) {
	sections, err := page.Query(greenhouseSections)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		if sections, err = page.Query(greenhouseAlt); err != nil {
			return nil, err
		}
	}

	var jobs []model.RawJob
	if len(sections) == 0 {
		g.log.Debug("no openings found, falling back to job links")
		links, err := page.Query(greenhouseLinks)
		if err != nil {
			return nil, err
		}
		jobs = linkJobs(links, g.baseURL, 0)
	} else {
		for _, section := range sections {
			link, _ := browser.First(section, "a")
			if link == nil {
				continue
			}
			title, href := textOf(link), attrOf(link, "href")
			if title == "" || href == "" {
				continue
			}
			jobs = append(jobs, model.RawJob{
				Title:    title,
				URL:      absoluteURL(href, g.baseURL),
				Location: browser.TextOf(section, ".location, span.location"),
			})
		}
	}

	applyCompany(jobs, strings.TrimSpace(browser.TextOf(page, greenhouseCompany)))
	return jobs, nil
}

func (g *greenhouse) AdvancePage(context.Context, browser.Page) bool { return false }
