package scraper

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

const (
	leverPostings   = ".posting"
	leverAlt        = "[data-qa='posting-name']"
	leverLinks      = "a[href*='lever.co']"
	leverTitle      = "h5, .posting-name, [data-qa='posting-name']"
	leverLink       = "a.posting-title, a[href]"
	leverLocation   = ".posting-categories .location, .sort-by-location, .workplaceTypes"
	leverTeam       = ".posting-categories .department, .sort-by-team"
	leverCommitment = ".posting-categories .commitment, .sort-by-commitment"
	leverCompany    = ".main-header-title h1, .company-name"
)

// lever reads jobs.lever.co listings, which are a single page.
type lever struct {
	baseURL string
	log     *zap.Logger
}

func newLever(baseURL string, _ model.ScraperConfig, log *zap.Logger) Strategy {
	return &lever{baseURL: baseURL, log: log.With(zap.String("strategy", Lever))}
}

func (l *lever) Name() string { return Lever }

func (l *lever) ExtractJobs(_ context.Context, page browser.Page) ([]model.RawJob, error) {
	postings, err := page.Query(leverPostings)
	if err != nil {
		return nil, err
	}
	if len(postings) == 0 {
		if postings, err = page.Query(leverAlt); err != nil {
			return nil, err
		}
	}

	var jobs []model.RawJob
	if len(postings) == 0 {
		l.log.Debug("no postings found, falling back to lever links")
		links, err := page.Query(leverLinks)
		if err != nil {
			return nil, err
		}
		jobs = linkJobs(links, l.baseURL, 3)
	} else {
		for _, posting := range postings {
			if job, ok := l.extractPosting(posting); ok {
				jobs = append(jobs, job)
			}
		}
	}

	applyCompany(jobs, strings.TrimSpace(browser.TextOf(page, leverCompany)))
	return jobs, nil
}

func (l *lever) extractPosting(posting browser.Element) (model.RawJob, bool) {
	titleEl, _ := browser.First(posting, leverTitle)
	if titleEl == nil {
		titleEl, _ = browser.First(posting, "a")
	}
	title := textOf(titleEl)

	href := ""
	if link, _ := browser.First(posting, leverLink); link != nil {
		href = attrOf(link, "href")
	}
	if href == "" {
		href = attrOf(posting, "href")
	}
	if title == "" || href == "" {
		return model.RawJob{}, false
	}

	var desc []string
	for _, part := range []string{
		browser.TextOf(posting, leverTeam),
		browser.TextOf(posting, leverCommitment),
	} {
		if part != "" {
			desc = append(desc, part)
		}
	}

	return model.RawJob{
		Title:       title,
		URL:         absoluteURL(href, l.baseURL),
		Location:    browser.TextOf(posting, leverLocation),
		Description: strings.Join(desc, " | "),
	}, true
}

func (l *lever) AdvancePage(context.Context, browser.Page) bool { return false }
