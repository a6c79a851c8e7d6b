package scraper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/config"
	"github.com/TRA3H/hunter/internal/model"
)

// Coordinator runs one board scan end to end: access check, headless
// session, the strategy's page loop and pacing between every request.
type Coordinator struct {
	launcher browser.Launcher
	policy   Policy
	delayer  Delayer
	scan     config.ScanConfig
	log      *zap.Logger
}

// NewCoordinator wires a Coordinator. A nil policy allows everything and a
// nil delayer defaults to RandomDelayer.
func NewCoordinator(launcher browser.Launcher, policy Policy, delayer Delayer, scan config.ScanConfig, log *zap.Logger) *Coordinator {
	if policy == nil {
		policy = AllowAll{}
	}
	if delayer == nil {
		delayer = RandomDelayer{}
	}
	if scan.MaxPages < 1 {
		scan.MaxPages = 5
	}
	return &Coordinator{
		launcher: launcher,
		policy:   policy,
		delayer:  delayer,
		scan:     scan,
		log:      log.Named("scraper"),
	}
}

// Scan returns every raw job extracted from board, across at most
// max_pages pages. A board disallowed by robots.txt yields no jobs and no
// error, and no page is loaded. Jobs extracted before a mid-scan failure are returned together
// with the error.
func (c *Coordinator) Scan(ctx context.Context, board model.SourceBoard) ([]model.RawJob, error) {
	log := c.log.With(zap.String("board_id", board.ID), zap.String("board", board.Name))

	if !c.policy.IsAllowed(ctx, board.URL) {
		log.Warn("robots.txt disallows scanning", zap.String("url", board.URL))
		return nil, nil
	}

	maxPages := board.ScraperConfig.MaxPages
	if maxPages < 1 {
		maxPages = c.scan.MaxPages
	}
	strategy := New(board.ScraperType, board.URL, board.ScraperConfig, log)

	sess, err := c.launcher.Launch(ctx, browser.LaunchOptions{Headless: true})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer sess.Close()

	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := c.delayer.Wait(ctx, c.scan.InitialMinDelay, c.scan.InitialMaxDelay); err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, board.URL); err != nil {
		return nil, fmt.Errorf("load %s: %w", board.URL, err)
	}
	if err := c.delayer.Wait(ctx, c.scan.InitialMinDelay, c.scan.InitialMaxDelay); err != nil {
		return nil, err
	}

	var all []model.RawJob
	seen := make(map[string]struct{})
	for n := 1; n <= maxPages; n++ {
		jobs, err := strategy.ExtractJobs(ctx, page)
		if err != nil {
			return all, fmt.Errorf("extract page %d: %w", n, err)
		}
		// Load-more pagination and nested containers surface the same
		// listing more than once.
		for _, job := range jobs {
			if _, dup := seen[job.URL]; dup {
				continue
			}
			seen[job.URL] = struct{}{}
			all = append(all, job)
		}
		log.Debug("page extracted", zap.Int("page", n), zap.Int("jobs", len(jobs)))

		if n == maxPages || !strategy.AdvancePage(ctx, page) {
			break
		}
		if err := c.delayer.Wait(ctx, c.scan.MinDelay, c.scan.MaxDelay); err != nil {
			return all, err
		}
	}

	log.Info("scan extracted jobs", zap.String("strategy", strategy.Name()), zap.Int("jobs", len(all)))
	return all, nil
}
