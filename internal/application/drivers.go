package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/autofill"
	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/logger"
	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/store"
)

// applySelectors find the control that leads from a job description to its
// form, most specific first.
var applySelectors = []string{
	`a:has-text("Apply for this Job")`,
	`button:has-text("Apply for this Job")`,
	`a:has-text("Apply Now")`,
	`button:has-text("Apply Now")`,
	`a:has-text("Apply for this Position")`,
	`button:has-text("Apply for this Position")`,
	`a:has-text("Apply to this Job")`,
	`button:has-text("Apply to this Job")`,
	`a:has-text("Apply")`,
	`button:has-text("Apply")`,
	`[data-testid="apply-button"]`,
	`.apply-button`,
	`#apply-button`,
}

var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button:has-text("Submit")`,
	`button:has-text("Apply")`,
	`button:has-text("Send")`,
}

const (
	renderWait = 2 * time.Second
	clickWait  = 15 * time.Second
	submitWait = 3 * time.Second
)

// Screenshot steps.
const (
	stepInitial         = "initial"
	stepAfterApplyClick = "after_apply_click"
	stepFilled          = "filled"
	stepBeforeSubmit    = "before_submit"
	stepAfterSubmit     = "after_submit"
)

// ─── Auto-apply ──────────────────────────────────────────────────────────────

// RunAutoApply opens the job, fills what it can from the profile and pauses
// in needs_review. It never submits.
func (s *Service) RunAutoApply(ctx context.Context, id string) error {
	app, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if Status(app.Status) != StatusPending {
		return fmt.Errorf("%w: auto-apply requires %s, got %s", ErrInvalidState, StatusPending, app.Status)
	}

	jobURL, err := s.jobURL(ctx, app)
	if errors.Is(err, ErrJobMissing) {
		return s.failMissing(ctx, app, ErrJobMissing, "Associated job not found")
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	profile, err := s.store.GetProfile(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.failMissing(ctx, app, ErrProfileMissing, "User profile not found. Please set up your profile first.")
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if _, err := s.transition(ctx, id, StatusPending, StatusInProgress, ActionStarted,
		fmt.Sprintf("Starting auto-apply for %s at %s", app.JobTitle, app.Company), "", nil); err != nil {
		return err
	}

	if err := s.autoApply(ctx, app, jobURL, profile); err != nil {
		s.log.Error("auto-apply failed", zap.String("application_id", id), zap.Error(err))
		return s.fail(ctx, id, StatusInProgress, "Auto-apply failed", err)
	}
	return nil
}

// jobURL resolves the posting to open. Manual entries carry their own URL.
func (s *Service) jobURL(ctx context.Context, app *model.ApplicationRecord) (string, error) {
	if app.JobID == nil {
		if app.URL == "" {
			return "", ErrJobMissing
		}
		return app.URL, nil
	}
	job, err := s.store.GetJob(ctx, *app.JobID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && job.URL == "") {
		return "", ErrJobMissing
	}
	if err != nil {
		return "", err
	}
	return job.URL, nil
}

// failMissing records a missing dependency before any browser work and
// returns sentinel.
func (s *Service) failMissing(ctx context.Context, app *model.ApplicationRecord, sentinel error, msg string) error {
	updated, err := s.transition(ctx, app.ID, StatusPending, StatusFailed, ActionFailed, msg, "",
		func(a *model.ApplicationRecord) { a.ErrorMessage = msg })
	if err != nil {
		return errors.Join(sentinel, err)
	}
	s.publish(ctx, updated, msg)
	return sentinel
}

func (s *Service) autoApply(ctx context.Context, app *model.ApplicationRecord, jobURL string, profile *model.CandidateProfile) error {
	id := app.ID
	sess, err := s.launcher.Launch(ctx, browser.LaunchOptions{Headless: s.cfg.Headless})
	if err != nil {
		return err
	}
	defer sess.Close()

	page, err := sess.NewPage(ctx)
	if err != nil {
		return err
	}

	if err := s.appendLog(ctx, id, ActionNavigating, "Opening "+jobURL, ""); err != nil {
		return err
	}
	if err := page.Goto(ctx, jobURL); err != nil {
		return err
	}
	if err := page.Settle(ctx, renderWait); err != nil {
		return err
	}

	step := stepInitial
	if btn := applyLink(page); btn != nil {
		if err := s.appendLog(ctx, id, ActionClickingApply,
			"Found apply button, clicking through to application form", ""); err != nil {
			return err
		}
		if err := btn.Click(); err != nil {
			s.log.Warn("failed to click apply button", zap.String("application_id", id), zap.Error(err))
		} else {
			if err := page.Settle(ctx, clickWait); err != nil {
				return err
			}
			step = stepAfterApplyClick
		}
	}

	shot := s.screenshot(page, id, step)
	if err := s.appendLog(ctx, id, ActionPageLoaded, "Application page loaded", shot); err != nil {
		return err
	}

	content, err := page.Content()
	if err != nil {
		return err
	}
	if autofill.DetectCaptcha(content) {
		pageURL := page.URL()
		updated, err := s.transition(ctx, id, StatusInProgress, StatusNeedsReview, ActionCaptchaDetected,
			"CAPTCHA detected, pausing for human review", shot,
			func(a *model.ApplicationRecord) {
				a.Fields = []model.FormField{autofill.CaptchaField()}
				a.ScreenshotPath = shot
				a.CurrentPageURL = pageURL
			})
		if err != nil {
			return err
		}
		s.notifier.ReviewNeeded(ctx, id, app.JobTitle, app.Company)
		s.publish(ctx, updated, "CAPTCHA detected")
		return nil
	}

	if err := s.appendLog(ctx, id, ActionAnalyzing, "Analyzing form fields", ""); err != nil {
		return err
	}
	fields, err := s.engine.AnalyzeFields(ctx, page, profile)
	if err != nil {
		return err
	}
	if err := s.appendLog(ctx, id, ActionFilling, fmt.Sprintf("Attempting to fill %d fields", len(fields)), ""); err != nil {
		return err
	}
	filled, err := s.engine.FillFields(ctx, page, fields)
	if err != nil {
		return err
	}
	if autofill.ResumeUploaded(filled) {
		if err := s.appendLog(ctx, id, ActionResumeUploaded, "Resume uploaded", ""); err != nil {
			return err
		}
	}

	shot = s.screenshot(page, id, stepFilled)
	if err := s.appendLog(ctx, id, ActionFieldsFilled, "Form fields processed", shot); err != nil {
		return err
	}

	// Always pause, even when every field is filled with high confidence.
	action, details, message := ActionReadyForReview,
		"All fields filled, awaiting user confirmation before submit", "Ready for review"
	if autofill.NeedsHumanReview(filled) {
		action, details, message = ActionNeedsReview,
			"Some fields need human input, pausing for review", "Needs human review"
	}
	clean := autofill.CleanFields(filled)
	pageURL := page.URL()
	updated, err := s.transition(ctx, id, StatusInProgress, StatusNeedsReview, action, details, shot,
		func(a *model.ApplicationRecord) {
			a.Fields = clean
			a.ScreenshotPath = shot
			a.CurrentPageURL = pageURL
		})
	if err != nil {
		return err
	}
	s.notifier.ReviewNeeded(ctx, id, app.JobTitle, app.Company)
	s.publish(ctx, updated, message)
	return nil
}

// ─── Resume ──────────────────────────────────────────────────────────────────

// Resume re-enters the form after approval, refills the reviewed values and
// submits. Without a submit control it returns to needs_review.
func (s *Service) Resume(ctx context.Context, id string) error {
	app, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if Status(app.Status) != StatusReadyToSubmit {
		return fmt.Errorf("%w: resume requires %s, got %s", ErrInvalidState, StatusReadyToSubmit, app.Status)
	}
	profile, err := s.optionalProfile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	target := s.targetURL(ctx, app)

	if _, err := s.transition(ctx, id, StatusReadyToSubmit, StatusInProgress, ActionResuming,
		"Resuming application with user-reviewed fields", "", nil); err != nil {
		return err
	}

	if err := s.resume(ctx, app, target, profile); err != nil {
		s.log.Error("resume failed", zap.String("application_id", id), zap.Error(err))
		return s.fail(ctx, id, StatusInProgress, "Resume apply failed", err)
	}
	return nil
}

func (s *Service) resume(ctx context.Context, app *model.ApplicationRecord, target string, profile *model.CandidateProfile) error {
	id := app.ID
	if target == "" {
		return errors.New("no url to resume from")
	}

	sess, err := s.launcher.Launch(ctx, browser.LaunchOptions{Headless: s.cfg.Headless})
	if err != nil {
		return err
	}
	defer sess.Close()

	page, err := s.openFilled(ctx, sess, target, app.Fields, profile)
	if err != nil {
		return err
	}

	shot := s.screenshot(page, id, stepBeforeSubmit)
	if err := s.appendLog(ctx, id, ActionFieldsFilled, "All reviewed fields filled", shot); err != nil {
		return err
	}

	btn := firstVisible(page, submitSelectors)
	if btn == nil {
		updated, err := s.transition(ctx, id, StatusInProgress, StatusNeedsReview, ActionSubmitFailed,
			"Could not find submit button, needs manual submission", shot, nil)
		if err != nil {
			return err
		}
		s.publish(ctx, updated, "Submit button not found")
		return nil
	}
	if err := btn.Click(); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	if err := page.Settle(ctx, submitWait); err != nil {
		return err
	}

	shot = s.screenshot(page, id, stepAfterSubmit)
	submittedAt := s.now().UTC()
	updated, err := s.transition(ctx, id, StatusInProgress, StatusSubmitted, ActionSubmitted,
		"Application submitted successfully", shot,
		func(a *model.ApplicationRecord) {
			a.SubmittedAt = &submittedAt
			a.ScreenshotPath = shot
		})
	if err != nil {
		return err
	}
	s.publish(ctx, updated, "Application submitted")
	return nil
}

// ─── Open browser ────────────────────────────────────────────────────────────

// OpenBrowser shows the paused form, pre-filled, in a headed browser and
// blocks until the candidate closes it. It changes no status.
func (s *Service) OpenBrowser(ctx context.Context, id string) error {
	app, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch Status(app.Status) {
	case StatusNeedsReview, StatusReadyToSubmit:
	default:
		return fmt.Errorf("%w: open browser requires %s or %s, got %s",
			ErrInvalidState, StatusNeedsReview, StatusReadyToSubmit, app.Status)
	}
	profile, err := s.optionalProfile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	target := s.targetURL(ctx, app)

	if err := s.appendLog(ctx, id, ActionBrowserOpened, "Opening headed browser with pre-filled form data", ""); err != nil {
		return err
	}

	if err := s.openBrowser(ctx, app, target, profile); err != nil {
		s.log.Error("open browser failed", zap.String("application_id", id), zap.Error(err))
		if lerr := s.appendLog(context.WithoutCancel(ctx), id, ActionError,
			logger.Truncate("Open browser failed: "+err.Error(), maxLogError), ""); lerr != nil {
			s.log.Warn("record open browser failure", zap.Error(lerr))
		}
		return fmt.Errorf("%w: open browser: %w", ErrAutomationFailed, err)
	}
	return s.appendLog(context.WithoutCancel(ctx), id, ActionBrowserClosed, "User closed the headed browser", "")
}

func (s *Service) openBrowser(ctx context.Context, app *model.ApplicationRecord, target string, profile *model.CandidateProfile) error {
	if target == "" {
		return errors.New("no url available")
	}
	sess, err := s.launcher.Launch(ctx, browser.LaunchOptions{Headless: false})
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := s.openFilled(ctx, sess, target, app.Fields, profile); err != nil {
		return err
	}
	return sess.WaitClosed(ctx)
}

// ─── Shared ──────────────────────────────────────────────────────────────────

// openFilled opens target in sess and writes the stored field values back
// into the form. Individual fields that fail are logged and skipped.
func (s *Service) openFilled(
	ctx context.Context,
	sess browser.Session,
	target string,
	fields []model.FormField,
	profile *model.CandidateProfile,
) (browser.Page, error) {
	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, target); err != nil {
		return nil, err
	}
	if err := page.Settle(ctx, renderWait); err != nil {
		return nil, err
	}

	stored := make([]model.FormField, 0, len(fields))
	for _, f := range fields {
		if f.UIType == autofill.UIFile {
			if profile == nil || profile.ResumePath == "" {
				continue
			}
			f.Value = profile.ResumePath
		}
		f.Selector = ""
		stored = append(stored, f)
	}
	if _, err := s.engine.FillFields(ctx, page, stored); err != nil {
		return nil, err
	}
	return page, nil
}

// applyLink finds the control that leads from a job description to its
// form. A page that already shows form controls is the form itself, and a
// control that would submit a form is never a way through.
func applyLink(page browser.Page) browser.Element {
	if autofill.HasFillableControls(page) {
		return nil
	}
	for _, sel := range applySelectors {
		el, err := browser.FirstVisible(page, sel)
		if err != nil || el == nil || submitsForm(el) {
			continue
		}
		return el
	}
	return nil
}

// submitsForm reports whether clicking el would submit a form.
func submitsForm(el browser.Element) bool {
	tag, err := el.TagName()
	if err != nil {
		return true
	}
	typ, _, _ := el.Attr("type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch tag {
	case "input":
		return typ == "submit" || typ == "image"
	case "button":
		if typ == "submit" {
			return true
		}
		if typ == "" {
			form, err := el.Ancestor("form")
			return err != nil || form != nil
		}
	}
	return false
}

// firstVisible tries selectors in order; a selector that errors is skipped.
func firstVisible(page browser.Page, selectors []string) browser.Element {
	for _, sel := range selectors {
		if el, err := browser.FirstVisible(page, sel); err == nil && el != nil {
			return el
		}
	}
	return nil
}
