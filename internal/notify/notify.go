// Package notify tells the candidate about new jobs and paused
// applications. Notifiers are fire and forget: failures are logged.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// JobSummary is one line of a new-jobs notification.
type JobSummary struct {
	Title      string
	Company    string
	Location   string
	URL        string
	MatchScore float64
}

type Notifier interface {
	ReviewNeeded(ctx context.Context, appID, jobTitle, company string)
	NewJobs(ctx context.Context, jobs []JobSummary)
}

// Log writes notifications to the logger only.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notify")}
}

func (l *Log) ReviewNeeded(_ context.Context, appID, jobTitle, company string) {
	l.log.Info("application needs review",
		zap.String("application_id", appID),
		zap.String("job_title", jobTitle),
		zap.String("company", company),
	)
}

func (l *Log) NewJobs(_ context.Context, jobs []JobSummary) {
	if len(jobs) == 0 {
		return
	}
	l.log.Info("new jobs found", zap.Int("count", len(jobs)))
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) ReviewNeeded(ctx context.Context, appID, jobTitle, company string) {
	for _, n := range m {
		n.ReviewNeeded(ctx, appID, jobTitle, company)
	}
}

func (m Multi) NewJobs(ctx context.Context, jobs []JobSummary) {
	for _, n := range m {
		n.NewJobs(ctx, jobs)
	}
}
