package scraper

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

// DefaultSelectors are the generic strategy's selectors; a board's
// scraper_config.selectors overrides them key by key.
var DefaultSelectors = map[string]string{
	"job_card":    ".job-card, .job-listing, .job-item, .posting, [data-job], .job-result, .result-card",
	"title":       "h2 a, h3 a, .job-title a, .title a, [data-job-title], .posting-title",
	"company":     ".company, .company-name, .employer, [data-company], .posting-company",
	"location":    ".location, .job-location, [data-location], .posting-location",
	"link":        "a[href]",
	"salary":      ".salary, .compensation, .pay, [data-salary]",
	"posted_date": ".date, .posted, .posted-date, time, [datetime]",
	"description": ".description, .job-description, .summary, .snippet",
	"next_page":   ".next, .pagination .next, a[rel='next'], .load-more, button:has-text('Next')",
}

const (
	genericFallback = "a[href*='job'], a[href*='position'], a[href*='career']"
	siteNameMeta    = "meta[property='og:site_name']"
	navigationWait  = 15 * time.Second
	scrollWait      = 3 * time.Second
)

type generic struct {
	baseURL    string
	selectors  map[string]string
	pagination string
	pageParam  string
	page       int
	log        *zap.Logger
}

func newGeneric(baseURL string, cfg model.ScraperConfig, log *zap.Logger) Strategy {
	selectors := make(map[string]string, len(DefaultSelectors))
	for k, v := range DefaultSelectors {
		selectors[k] = v
	}
	for k, v := range cfg.Selectors {
		if v != "" {
			selectors[k] = v
		}
	}
	pagination := cfg.Pagination
	if pagination == "" {
		pagination = model.PaginationClick
	}
	param := cfg.PageParam
	if param == "" {
		param = "page"
	}
	return &generic{
		baseURL:    baseURL,
		selectors:  selectors,
		pagination: pagination,
		pageParam:  param,
		page:       1,
		log:        log.With(zap.String("strategy", Generic)),
	}
}

func (g *generic) Name() string { return Generic }

func (g *generic) ExtractJobs(_ context.Context, page browser.Page) ([]model.RawJob, error) {
	cards, err := page.Query(g.selectors["job_card"])
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		g.log.Warn("no job cards found, trying link fallback", zap.String("selector", g.selectors["job_card"]))
		if cards, err = page.Query(genericFallback); err != nil {
			return nil, err
		}
	}
	g.log.Debug("potential job cards", zap.Int("count", len(cards)))

	jobs := make([]model.RawJob, 0, len(cards))
	for _, card := range cards {
		job := g.extractCard(card)
		if job.Title == "" || job.URL == "" {
			continue
		}
		jobs = append(jobs, job)
	}

	site, _ := browser.First(page, siteNameMeta)
	applyCompany(jobs, strings.TrimSpace(attrOf(site, "content")))
	return jobs, nil
}

func (g *generic) extractCard(card browser.Element) model.RawJob {
	var job model.RawJob

	titleEl, _ := browser.First(card, g.selectors["title"])
	if titleEl != nil {
		job.Title = textOf(titleEl)
	} else {
		for _, line := range strings.Split(textOf(card), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				job.Title = line
				break
			}
		}
	}

	var href string
	if linkEl, _ := browser.First(card, g.selectors["link"]); linkEl != nil {
		href = attrOf(linkEl, "href")
	} else if titleEl != nil {
		href = attrOf(titleEl, "href")
	}
	if href == "" {
		href = attrOf(card, "href")
	}
	if href != "" {
		job.URL = absoluteURL(href, g.baseURL)
	}

	job.Company = browser.TextOf(card, g.selectors["company"])
	job.Location = browser.TextOf(card, g.selectors["location"])
	job.SalaryText = browser.TextOf(card, g.selectors["salary"])
	job.Description = browser.TextOf(card, g.selectors["description"])

	if dateEl, _ := browser.First(card, g.selectors["posted_date"]); dateEl != nil {
		if dt := attrOf(dateEl, "datetime"); dt != "" {
			job.PostedDateText = dt
		} else {
			job.PostedDateText = textOf(dateEl)
		}
	}
	return job
}

func (g *generic) AdvancePage(ctx context.Context, page browser.Page) bool {
	switch g.pagination {
	case model.PaginationClick:
		return g.clickNext(ctx, page)
	case model.PaginationInfiniteScroll:
		return g.scroll(ctx, page)
	case model.PaginationURLParam:
		return g.nextURL(ctx, page)
	}
	return false
}

func (g *generic) clickNext(ctx context.Context, page browser.Page) bool {
	btn, err := browser.First(page, g.selectors["next_page"])
	if err != nil || btn == nil || isDisabled(btn) {
		return false
	}
	if err := btn.Click(); err != nil {
		g.log.Debug("next page click failed", zap.Error(err))
		return false
	}
	_ = page.Settle(ctx, navigationWait)
	return true
}

func (g *generic) scroll(ctx context.Context, page browser.Page) bool {
	before, err := page.ScrollHeight()
	if err != nil {
		return false
	}
	if err := page.ScrollToBottom(); err != nil {
		g.log.Debug("scroll failed", zap.Error(err))
		return false
	}
	_ = page.Settle(ctx, scrollWait)
	after, err := page.ScrollHeight()
	if err != nil {
		return false
	}
	return after > before
}

func (g *generic) nextURL(ctx context.Context, page browser.Page) bool {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		g.log.Debug("url pagination: bad base url", zap.Error(err))
		return false
	}
	g.page++
	q := u.Query()
	q.Set(g.pageParam, strconv.Itoa(g.page))
	u.RawQuery = q.Encode()

	if err := page.Goto(ctx, u.String()); err != nil {
		g.log.Debug("url pagination failed", zap.String("url", u.String()), zap.Error(err))
		return false
	}
	return true
}
