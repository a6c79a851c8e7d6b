package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/autofill"
	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/config"
	"github.com/TRA3H/hunter/internal/events"
	"github.com/TRA3H/hunter/internal/logger"
	"github.com/TRA3H/hunter/internal/metrics"
	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/notify"
	"github.com/TRA3H/hunter/internal/store"
)

// Error message bounds.
const (
	maxRecordError = 500
	maxLogError    = 300
)

// Log actions.
const (
	ActionCreated         = "created"
	ActionStarted         = "started"
	ActionNavigating      = "navigating"
	ActionClickingApply   = "clicking_apply"
	ActionPageLoaded      = "page_loaded"
	ActionCaptchaDetected = "captcha_detected"
	ActionAnalyzing       = "analyzing"
	ActionFilling         = "filling"
	ActionResumeUploaded  = "resume_uploaded"
	ActionFieldsFilled    = "fields_filled"
	ActionNeedsReview     = "needs_review"
	ActionReadyForReview  = "ready_for_review"
	ActionReviewSubmitted = "review_submitted"
	ActionResuming        = "resuming"
	ActionSubmitted       = "submitted"
	ActionSubmitFailed    = "submit_failed"
	ActionBrowserOpened   = "browser_opened"
	ActionBrowserClosed   = "browser_closed"
	ActionCancelled       = "cancelled"
	ActionFailed          = "failed"
	ActionError           = "error"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when an application does not exist.
	ErrNotFound = errors.New("application not found")
	// ErrInvalidState is returned when an operation is not allowed from the
	// record's current status. The record is left unchanged.
	ErrInvalidState = errors.New("application is in the wrong state")
	// ErrJobMissing is returned when the job an application points at no
	// longer exists or has no URL.
	ErrJobMissing = errors.New("associated job not found")
	// ErrProfileMissing is returned when no candidate profile has been set up.
	ErrProfileMissing = errors.New("user profile not found")
	// ErrAutomationFailed wraps browser failures that were already recorded
	// as a failed status; retrying cannot help.
	ErrAutomationFailed = errors.New("automation failed")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ─── Service ─────────────────────────────────────────────────────────────────

// Service runs the application drivers. Every status change goes through
// Store.Transition, so a driver that lost a race to Cancel stops at its next
// write instead of overwriting the newer status.
type Service struct {
	store    store.Store
	launcher browser.Launcher
	engine   *autofill.Engine
	events   events.Publisher
	notifier notify.Notifier
	metrics  *metrics.Metrics
	cfg      config.BrowserConfig
	log      *zap.Logger

	now func() time.Time
}

// NewService returns a configured Service. m may be nil.
func NewService(
	st store.Store,
	launcher browser.Launcher,
	pub events.Publisher,
	notifier notify.Notifier,
	m *metrics.Metrics,
	cfg config.BrowserConfig,
	log *zap.Logger,
) *Service {
	log = log.With(zap.String("component", "application"))
	return &Service{
		store:    st,
		launcher: launcher,
		engine:   autofill.NewEngine(log),
		events:   pub,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// ─── User operations ─────────────────────────────────────────────────────────

// CreateRequest starts an application for a stored job, or for a manual
// entry when JobID is empty.
type CreateRequest struct {
	JobID    string
	JobTitle string
	Company  string
	URL      string
}

// Create inserts a pending application with a created log entry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.ApplicationRecord, error) {
	app := &model.ApplicationRecord{
		Status:   string(StatusPending),
		JobTitle: req.JobTitle,
		Company:  req.Company,
		URL:      req.URL,
		Fields:   []model.FormField{},
	}

	if req.JobID != "" {
		job, err := s.store.GetJob(ctx, req.JobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobMissing, req.JobID)
		}
		if err != nil {
			return nil, fmt.Errorf("load job: %w", err)
		}
		jobID := job.ID
		app.JobID = &jobID
		app.JobTitle, app.Company, app.URL = job.Title, job.Company, job.URL
	} else if req.URL == "" || req.JobTitle == "" {
		return nil, &ValidationError{Msg: "manual applications need a title and a url"}
	}

	entry := model.ApplicationLogEntry{
		Action:  ActionCreated,
		Details: fmt.Sprintf("Application created for %s at %s", app.JobTitle, app.Company),
	}
	if err := s.store.CreateApplication(ctx, app, entry); err != nil {
		return nil, fmt.Errorf("createApplication: %w", err)
	}
	return app, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	app, err := s.store.GetApplication(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", id, err)
	}
	return app, nil
}

// SetTaskID records the queue id of the task now working on the record.
func (s *Service) SetTaskID(ctx context.Context, id, taskID string) error {
	err := s.store.UpdateApplication(ctx, id, func(app *model.ApplicationRecord) {
		app.TaskID = taskID
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SubmitReview merges the candidate's answers into the paused snapshot and
// approves it for submission. Each supplied value becomes a filled field at
// full confidence; names the form did not have are appended as text fields.
func (s *Service) SubmitReview(ctx context.Context, id string, values map[string]string) (*model.ApplicationRecord, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if Status(app.Status) != StatusNeedsReview {
		return nil, fmt.Errorf("%w: review requires %s, got %s", ErrInvalidState, StatusNeedsReview, app.Status)
	}

	fields := mergeReview(app.Fields, values)
	updated, err := s.transition(ctx, id, StatusNeedsReview, StatusReadyToSubmit,
		ActionReviewSubmitted, "User reviewed and approved form fields", "",
		func(a *model.ApplicationRecord) { a.Fields = fields })
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated, "Review submitted")
	return updated, nil
}

func mergeReview(fields []model.FormField, values map[string]string) []model.FormField {
	out := make([]model.FormField, len(fields))
	copy(out, fields)
	seen := make(map[string]bool, len(out))
	for i := range out {
		f := &out[i]
		seen[f.FieldName] = true
		v, ok := values[f.FieldName]
		if !ok {
			continue
		}
		f.Value = v
		f.Status = model.FieldFilled
		f.Confidence = 1.0
	}
	for name, v := range values {
		if seen[name] {
			continue
		}
		out = append(out, model.FormField{
			FieldName:  name,
			FieldKey:   autofill.KeyUnknown,
			UIType:     autofill.UIText,
			Label:      name,
			Value:      v,
			Confidence: 1.0,
			Status:     model.FieldFilled,
			Options:    []string{},
		})
	}
	return autofill.CleanFields(out)
}

// Cancel moves the record to cancelled from any non-terminal status. An
// in-flight driver notices at its next transition and stops.
func (s *Service) Cancel(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	// The status may move under us while a driver runs; re-read and retry.
	for attempt := 0; ; attempt++ {
		app, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		from, err := currentStatus(app)
		if err != nil {
			return nil, err
		}
		if IsTerminal(from) {
			return nil, fmt.Errorf("%w: application already %s", ErrInvalidState, from)
		}
		updated, err := s.transition(ctx, id, from, StatusCancelled,
			ActionCancelled, "Application cancelled by user", "", nil)
		if errors.Is(err, store.ErrStaleStatus) && attempt < 2 {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publish(ctx, updated, "Cancelled")
		return updated, nil
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// currentStatus parses the stored status. An unknown value is an invalid
// state rather than a storage error.
func currentStatus(app *model.ApplicationRecord) (Status, error) {
	st, err := ParseStatus(app.Status)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return st, nil
}

// transition commits a status change and its log entry together. Edges
// outside the status graph are refused before the store is touched.
func (s *Service) transition(
	ctx context.Context,
	id string,
	from, to Status,
	action, details, screenshot string,
	mutate store.Mutation,
) (*model.ApplicationRecord, error) {
	if !IsTransitionAllowed(from, to) {
		return nil, fmt.Errorf("%w: %s → %s is not allowed", ErrInvalidState, from, to)
	}
	entry := model.ApplicationLogEntry{
		ApplicationID:  id,
		Action:         action,
		Details:        details,
		ScreenshotPath: screenshot,
	}
	app, err := s.store.Transition(ctx, id, string(from), string(to), entry, mutate)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("transition %s → %s: %w", from, to, err)
	}
	s.metrics.Transition(string(to))
	s.log.Info("application status changed",
		zap.String("application_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("action", action),
	)
	return app, nil
}

// appendLog records a progress step that does not change status.
func (s *Service) appendLog(ctx context.Context, id, action, details, screenshot string) error {
	err := s.store.AppendLog(ctx, model.ApplicationLogEntry{
		ApplicationID:  id,
		Action:         action,
		Details:        details,
		ScreenshotPath: screenshot,
	})
	if err != nil {
		return fmt.Errorf("log %s: %w", action, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, app *model.ApplicationRecord, message string) {
	s.events.Publish(ctx, events.ApplicationUpdate(app.ID, app.Status, message))
}

// fail records cause as the terminal failure of a driver that was running
// from status from. The write survives cancellation of ctx so a hard time
// limit still leaves a failed record behind. A record that moved on (for
// example to cancelled) is left alone.
func (s *Service) fail(ctx context.Context, id string, from Status, prefix string, cause error) error {
	msg := cause.Error()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	app, err := s.transition(wctx, id, from, StatusFailed,
		ActionError, logger.Truncate(prefix+": "+msg, maxLogError), "",
		func(a *model.ApplicationRecord) { a.ErrorMessage = logger.Truncate(msg, maxRecordError) })
	if errors.Is(err, store.ErrStaleStatus) {
		s.log.Warn("status changed while automation ran, leaving it",
			zap.String("application_id", id), zap.Error(cause))
		return fmt.Errorf("%w: %s: %w", ErrAutomationFailed, prefix, cause)
	}
	if err != nil {
		s.log.Error("record failure failed", zap.String("application_id", id), zap.Error(err))
		return fmt.Errorf("%s: %w", prefix, errors.Join(cause, err))
	}
	s.publish(wctx, app, msg)
	return fmt.Errorf("%w: %s: %w", ErrAutomationFailed, prefix, cause)
}

// screenshot saves the page as <dir>/<id>_<step>.png. Failures are logged
// and yield an empty path.
func (s *Service) screenshot(page browser.Page, id, step string) string {
	path := filepath.Join(s.cfg.ScreenshotDir, fmt.Sprintf("%s_%s.png", id, step))
	if err := page.Screenshot(path); err != nil {
		s.log.Warn("screenshot failed", zap.String("application_id", id), zap.String("step", step), zap.Error(err))
		return ""
	}
	return path
}

// targetURL is where a resumed session should open: the page the form was
// last seen on, else the job posting.
func (s *Service) targetURL(ctx context.Context, app *model.ApplicationRecord) string {
	if app.CurrentPageURL != "" {
		return app.CurrentPageURL
	}
	if app.JobID != nil {
		if job, err := s.store.GetJob(ctx, *app.JobID); err == nil && job.URL != "" {
			return job.URL
		}
	}
	return app.URL
}

// optionalProfile returns the profile, or nil when none is set up.
func (s *Service) optionalProfile(ctx context.Context) (*model.CandidateProfile, error) {
	p, err := s.store.GetProfile(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}
