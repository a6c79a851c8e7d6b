// Package discovery runs a board scan end to end: extraction, keyword and
// exclude filtering, dedup insert, scoring, events and the board's scan
// bookkeeping.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/events"
	"github.com/TRA3H/hunter/internal/logger"
	"github.com/TRA3H/hunter/internal/matcher"
	"github.com/TRA3H/hunter/internal/metrics"
	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/notify"
	"github.com/TRA3H/hunter/internal/scraper"
	"github.com/TRA3H/hunter/internal/store"
)

const finishTimeout = 10 * time.Second

// maxScanError bounds the error message kept on the board.
const maxScanError = 500

// ErrBoardNotFound is returned when the board to scan does not exist.
var ErrBoardNotFound = errors.New("board not found")

// ValidationError rejects a board whose configuration cannot be scanned.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Scanner extracts raw jobs from a board.
type Scanner interface {
	Scan(ctx context.Context, board model.SourceBoard) ([]model.RawJob, error)
}

// Service scans boards and stores what they yield.
type Service struct {
	store    store.Store
	scanner  Scanner
	pub      events.Publisher
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires a Service. m may be nil.
func NewService(st store.Store, scanner Scanner, pub events.Publisher, notifier notify.Notifier, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		scanner:  scanner,
		pub:      pub,
		notifier: notifier,
		metrics:  m,
		log:      log.With(zap.String("component", "discovery")),
		now:      time.Now,
	}
}

// ScanBoard scans one board and returns how many new jobs it stored. A
// disabled board, or one whose scan is already running, is skipped with a
// zero count.
func (s *Service) ScanBoard(ctx context.Context, boardID string) (int, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if err != nil {
		return 0, fmt.Errorf("load board: %w", err)
	}
	log := s.log.With(zap.String("board_id", board.ID), zap.String("board", board.Name))

	if !board.Enabled {
		log.Info("board disabled, skipping scan")
		return 0, nil
	}
	if err := ValidateBoard(*board); err != nil {
		s.finishError(ctx, *board, err, log)
		return 0, err
	}

	started, err := s.store.MarkScanRunning(ctx, board.ID)
	if err != nil {
		return 0, fmt.Errorf("mark scan running: %w", err)
	}
	if !started {
		log.Info("scan already running, skipping")
		return 0, nil
	}
	log.Info("scan started", zap.String("scraper_type", board.ScraperType))

	stored, found, err := s.scan(ctx, *board, log)
	if err != nil {
		s.finishError(ctx, *board, err, log)
		return 0, err
	}

	res := store.ScanResult{Status: model.ScanSuccess, JobsFound: stored, At: s.now().UTC()}
	if err := s.store.FinishScan(context.WithoutCancel(ctx), board.ID, res); err != nil {
		return stored, fmt.Errorf("finish scan: %w", err)
	}
	s.metrics.ScanFinished(string(model.ScanSuccess), found, stored)
	log.Info("scan complete", zap.Int("found", found), zap.Int("new", stored))
	return stored, nil
}

// ResetScan marks a board stuck in running as failed so it can be scanned
// again. A worker that dies mid-scan leaves the flag behind.
func (s *Service) ResetScan(ctx context.Context, boardID string) error {
	board, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	if board.LastScanStatus != model.ScanRunning {
		return nil
	}
	res := store.ScanResult{Status: model.ScanError, Error: "scan interrupted", At: s.now().UTC()}
	if err := s.store.FinishScan(ctx, board.ID, res); err != nil {
		return fmt.Errorf("reset scan: %w", err)
	}
	s.log.Warn("stale running scan reset", zap.String("board_id", board.ID))
	return nil
}

// scan extracts, filters and stores; it returns the new and raw counts.
func (s *Service) scan(ctx context.Context, board model.SourceBoard, log *zap.Logger) (stored, found int, err error) {
	raw, err := s.scanner.Scan(ctx, board)
	if err != nil {
		return 0, len(raw), fmt.Errorf("scan %s: %w", board.URL, err)
	}
	found = len(raw)

	kept, filtered := scraper.Filter(raw, board)

	profile, err := s.store.GetProfile(ctx)
	if errors.Is(err, store.ErrNotFound) {
		profile = nil
	} else if err != nil {
		return 0, found, fmt.Errorf("load profile: %w", err)
	}
	prefs := matcher.PreferencesFor(board.Keywords, profile)

	var (
		summaries  []notify.JobSummary
		dupes      int
		incomplete int
	)
	for _, r := range kept {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.URL) == "" {
			incomplete++
			continue
		}
		job := toPosting(r, board.ID, prefs)

		inserted, err := s.store.InsertJob(ctx, &job)
		if err != nil {
			return stored, found, fmt.Errorf("insert job: %w", err)
		}
		if !inserted {
			dupes++
			continue
		}
		stored++
		s.pub.Publish(ctx, events.NewJob(job, board.Name))
		summaries = append(summaries, notify.JobSummary{
			Title:      job.Title,
			Company:    job.Company,
			Location:   job.Location,
			URL:        job.URL,
			MatchScore: job.MatchScore,
		})
	}

	if len(summaries) > 0 {
		s.notifier.NewJobs(ctx, summaries)
	}
	log.Debug("scan results",
		zap.Int("found", found),
		zap.Int("filtered", filtered),
		zap.Int("incomplete", incomplete),
		zap.Int("duplicates", dupes),
		zap.Int("new", stored),
	)
	return stored, found, nil
}

func toPosting(r model.RawJob, boardID string, prefs matcher.Preferences) model.JobPosting {
	lo, hi := matcher.ParseSalary(r.SalaryText)
	return model.JobPosting{
		BoardID:     boardID,
		Title:       strings.TrimSpace(r.Title),
		Company:     strings.TrimSpace(r.Company),
		Location:    strings.TrimSpace(r.Location),
		URL:         strings.TrimSpace(r.URL),
		PostedDate:  matcher.ParsePostedDate(r.PostedDateText),
		SalaryMin:   lo,
		SalaryMax:   hi,
		Description: r.Description,
		DedupHash:   matcher.DedupHash(r.URL, r.Title, r.Company),
		MatchScore:  matcher.MatchScore(r.Title, r.Description, r.Location, prefs),
		IsNew:       true,
	}
}

// finishError records a failed scan on the board and broadcasts it. It
// runs on a detached context so a timed-out scan is still recorded.
func (s *Service) finishError(ctx context.Context, board model.SourceBoard, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	msg := cause.Error()
	log.Error("scan failed", zap.Error(cause))
	res := store.ScanResult{Status: model.ScanError, Error: logger.Truncate(msg, maxScanError), At: s.now().UTC()}
	if err := s.store.FinishScan(ctx, board.ID, res); err != nil {
		log.Error("record scan failure", zap.Error(err))
	}
	s.metrics.ScanFinished(string(model.ScanError), 0, 0)
	s.pub.Publish(ctx, events.ScanError(board.ID, board.Name, msg))
}

// ─── Validation ──────────────────────────────────────────────────────────────

// ValidateBoard rejects a board that cannot be scanned at all. Unknown
// strategy names and pagination modes are not errors: they degrade to the
// generic strategy and a single page.
func ValidateBoard(b model.SourceBoard) error {
	u, err := url.Parse(strings.TrimSpace(b.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Msg: fmt.Sprintf("board url %q must be an absolute http(s) url", b.URL)}
	}
	if b.ScraperConfig.MaxPages < 0 {
		return &ValidationError{Msg: fmt.Sprintf("max_pages must not be negative, got %d", b.ScraperConfig.MaxPages)}
	}
	return nil
}
