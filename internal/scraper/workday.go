package scraper

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

const (
	workdayResults  = `[data-automation-id="jobResults"], section[data-automation-id="jobResults"], .css-1q2dra3`
	workdayCards    = `[data-automation-id="jobTitle"], .css-19uc56f, li[class*="css-"] a[href*="/job/"]`
	workdayLinks    = `a[href*="/job/"]`
	workdayLocation = `dd, [data-automation-id="locations"], .css-129m7dg`
	workdayCompany  = `[data-automation-id="orgName"], .css-1oyvp5d, header h1`
	workdayMore     = `button[data-automation-id="loadMoreButton"], button:has-text("Show More"), button:has-text("View More")`
	workdayNext     = `button[data-automation-id="next"], button[aria-label="next"], button:has-text("Next")`

	workdayResultsWait = 15 * time.Second
	workdayRenderWait  = 2 * time.Second
)

// workday reads myworkdayjobs.com search results, which render client side
// and paginate with either a "load more" button or numbered pages.
type workday struct {
	baseURL string
	log     *zap.Logger
}

func newWorkday(baseURL string, _ model.ScraperConfig, log *zap.Logger) Strategy {
	return &workday{baseURL: baseURL, log: log.With(zap.String("strategy", Workday))}
}

func (w *workday) Name() string { return Workday }

func (w *workday) ExtractJobs(ctx context.Context, page browser.Page) ([]model.RawJob, error) {
	if err := page.WaitFor(ctx, workdayResults, workdayResultsWait); err != nil {
		w.log.Warn("workday results container never appeared", zap.Error(err))
	}
	if err := page.Settle(ctx, workdayRenderWait); err != nil {
		return nil, err
	}

	cards, err := page.Query(workdayCards)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		if cards, err = page.Query(workdayLinks); err != nil {
			return nil, err
		}
	}

	jobs := make([]model.RawJob, 0, len(cards))
	for _, card := range cards {
		if job, ok := w.extractCard(card); ok {
			jobs = append(jobs, job)
		}
	}

	applyCompany(jobs, strings.TrimSpace(browser.TextOf(page, workdayCompany)))
	return jobs, nil
}

func (w *workday) extractCard(card browser.Element) (model.RawJob, bool) {
	title := textOf(card)
	var href string
	if tag, _ := card.TagName(); tag == "a" {
		href = attrOf(card, "href")
	} else if link, _ := browser.First(card, "a"); link != nil {
		href = attrOf(link, "href")
	}
	if title == "" || href == "" {
		return model.RawJob{}, false
	}

	job := model.RawJob{Title: title, URL: absoluteURL(href, w.baseURL)}
	if row, _ := card.Ancestor("li"); row != nil {
		job.Location = browser.TextOf(row, workdayLocation)
	}
	return job, true
}

func (w *workday) AdvancePage(ctx context.Context, page browser.Page) bool {
	if more, _ := browser.First(page, workdayMore); more != nil && !isDisabled(more) {
		if err := more.Click(); err == nil {
			_ = page.Settle(ctx, scrollWait)
			return true
		}
		w.log.Debug("load more click failed")
	}

	next, _ := browser.First(page, workdayNext)
	if next == nil || isDisabled(next) {
		return false
	}
	if err := next.Click(); err != nil {
		w.log.Debug("next page click failed", zap.Error(err))
		return false
	}
	_ = page.Settle(ctx, navigationWait)
	return true
}
