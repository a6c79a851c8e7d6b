// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/store"
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ─── Store ───────────────────────────────────────────────────────────────────

type Store struct {
	db DB
}

var _ store.Store = (*Store)(nil)

func New(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ─── Boards ──────────────────────────────────────────────────────────────────

const boardColumns = `id::text, name, url, scraper_type, scraper_config, keywords, exclude_terms,
	scan_interval_minutes, enabled, last_scan_at, last_scan_status, last_scan_error, jobs_found_last_scan`

func scanBoard(row pgx.Row) (*model.SourceBoard, error) {
	var (
		b      model.SourceBoard
		cfg    []byte
		status string
	)
	if err := row.Scan(
		&b.ID, &b.Name, &b.URL, &b.ScraperType, &cfg, &b.Keywords, &b.ExcludeTerms,
		&b.ScanIntervalMinutes, &b.Enabled, &b.LastScanAt, &status, &b.LastScanError, &b.JobsFoundLastScan,
	); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &b.ScraperConfig); err != nil {
			return nil, fmt.Errorf("decode scraper_config of board %s: %w", b.ID, err)
		}
	}
	b.LastScanStatus = model.ScanStatus(status)
	return &b, nil
}

func (s *Store) ListEnabledBoards(ctx context.Context) ([]model.SourceBoard, error) {
	rows, err := s.db.Query(ctx, `SELECT `+boardColumns+` FROM boards WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listEnabledBoards query: %w", err)
	}
	defer rows.Close()

	var boards []model.SourceBoard
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("listEnabledBoards scan: %w", err)
		}
		boards = append(boards, *b)
	}
	return boards, rows.Err()
}

func (s *Store) GetBoard(ctx context.Context, id string) (*model.SourceBoard, error) {
	b, err := scanBoard(s.db.QueryRow(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "getBoard")
	}
	return b, nil
}

func (s *Store) MarkScanRunning(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE boards SET last_scan_status = 'running'
		 WHERE id = $1 AND last_scan_status <> 'running'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("markScanRunning: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM boards WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("markScanRunning exists: %w", err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *Store) FinishScan(ctx context.Context, id string, res store.ScanResult) error {
	var found *int
	if res.Status == model.ScanSuccess {
		found = &res.JobsFound
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE boards
		 SET last_scan_at         = $2,
		     last_scan_status     = $3,
		     last_scan_error      = $4,
		     jobs_found_last_scan = COALESCE($5, jobs_found_last_scan)
		 WHERE id = $1`,
		id, res.At, string(res.Status), res.Error, found,
	)
	if err != nil {
		return fmt.Errorf("finishScan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (s *Store) InsertJob(ctx context.Context, job *model.JobPosting) (bool, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO jobs (id, board_id, title, company, location, url, posted_date,
		                   salary_min, salary_max, description, dedup_hash, match_score,
		                   is_new, is_hidden, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (dedup_hash) DO NOTHING`,
		job.ID, job.BoardID, job.Title, job.Company, job.Location, job.URL, job.PostedDate,
		job.SalaryMin, job.SalaryMax, job.Description, job.DedupHash, job.MatchScore,
		job.IsNew, job.IsHidden, job.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insertJob: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.JobPosting, error) {
	var j model.JobPosting
	err := s.db.QueryRow(ctx,
		`SELECT id::text, COALESCE(board_id::text, ''), title, company, location, url, posted_date,
		        salary_min, salary_max, description, dedup_hash, match_score, is_new, is_hidden, created_at
		 FROM jobs WHERE id = $1`,
		id,
	).Scan(
		&j.ID, &j.BoardID, &j.Title, &j.Company, &j.Location, &j.URL, &j.PostedDate,
		&j.SalaryMin, &j.SalaryMax, &j.Description, &j.DedupHash, &j.MatchScore, &j.IsNew, &j.IsHidden, &j.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "getJob")
	}
	return &j, nil
}

// ─── Profile ─────────────────────────────────────────────────────────────────

func (s *Store) GetProfile(ctx context.Context) (*model.CandidateProfile, error) {
	var (
		p         model.CandidateProfile
		education []byte
		work      []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id::text, first_name, last_name, email, phone, linkedin_url, website_url,
		        us_citizen, sponsorship_needed, veteran_status, disability_status, gender, ethnicity,
		        resume_filename, resume_path, cover_letter_template,
		        desired_title, desired_locations, min_salary, remote_preference,
		        education, work_experience
		 FROM profiles ORDER BY created_at LIMIT 1`,
	).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.LinkedInURL, &p.WebsiteURL,
		&p.USCitizen, &p.SponsorshipNeeded, &p.VeteranStatus, &p.DisabilityStatus, &p.Gender, &p.Ethnicity,
		&p.ResumeFilename, &p.ResumePath, &p.CoverLetterTemplate,
		&p.DesiredTitle, &p.DesiredLocations, &p.MinSalary, &p.RemotePreference,
		&education, &work,
	)
	if err != nil {
		return nil, notFound(err, "getProfile")
	}
	if err := unmarshalIfSet(education, &p.Education); err != nil {
		return nil, fmt.Errorf("decode education: %w", err)
	}
	if err := unmarshalIfSet(work, &p.WorkExperience); err != nil {
		return nil, fmt.Errorf("decode work_experience: %w", err)
	}
	return &p, nil
}

// ─── Applications ────────────────────────────────────────────────────────────

const appColumns = `id::text, job_id::text, job_title, company, url, status, form_fields,
	screenshot_path, current_page_url, error_message, task_id, created_at, updated_at, submitted_at`

func scanApp(row pgx.Row) (*model.ApplicationRecord, error) {
	var (
		a      model.ApplicationRecord
		fields []byte
	)
	if err := row.Scan(
		&a.ID, &a.JobID, &a.JobTitle, &a.Company, &a.URL, &a.Status, &fields,
		&a.ScreenshotPath, &a.CurrentPageURL, &a.ErrorMessage, &a.TaskID,
		&a.CreatedAt, &a.UpdatedAt, &a.SubmittedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(fields, &a.Fields); err != nil {
		return nil, fmt.Errorf("decode form_fields of %s: %w", a.ID, err)
	}
	return &a, nil
}

func (s *Store) CreateApplication(ctx context.Context, app *model.ApplicationRecord, entry model.ApplicationLogEntry) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	fields, err := marshalFields(app.Fields)
	if err != nil {
		return err
	}

	return s.inTx(ctx, "createApplication", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO applications (id, job_id, job_title, company, url, status, form_fields, task_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
			 RETURNING created_at, updated_at`,
			app.ID, app.JobID, app.JobTitle, app.Company, app.URL, app.Status, fields, app.TaskID,
		).Scan(&app.CreatedAt, &app.UpdatedAt)
		if err != nil {
			return err
		}
		entry.ApplicationID = app.ID
		return insertLog(ctx, tx, entry)
	})
}

func (s *Store) GetApplication(ctx context.Context, id string) (*model.ApplicationRecord, error) {
	a, err := scanApp(s.db.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "getApplication")
	}
	return a, nil
}

// Transition locks the row, checks the observed status, and writes the
// new status, the mutated columns and the log entry in one transaction.
func (s *Store) Transition(ctx context.Context, id, from, to string, entry model.ApplicationLogEntry, mutate store.Mutation) (*model.ApplicationRecord, error) {
	var out *model.ApplicationRecord
	err := s.inTx(ctx, "transition", func(tx pgx.Tx) error {
		a, err := scanApp(tx.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "transition select")
		}
		if a.Status != from {
			return store.ErrStaleStatus
		}
		if mutate != nil {
			mutate(a)
		}
		a.ID, a.Status = id, to

		if err := updateApp(ctx, tx, a, from); err != nil {
			return err
		}
		entry.ApplicationID = id
		if err := insertLog(ctx, tx, entry); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateApplication(ctx context.Context, id string, mutate store.Mutation) error {
	return s.inTx(ctx, "updateApplication", func(tx pgx.Tx) error {
		a, err := scanApp(tx.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "updateApplication select")
		}
		status := a.Status
		mutate(a)
		a.ID, a.Status = id, status
		return updateApp(ctx, tx, a, status)
	})
}

func updateApp(ctx context.Context, tx pgx.Tx, a *model.ApplicationRecord, from string) error {
	fields, err := marshalFields(a.Fields)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE applications
		 SET status           = $2,
		     form_fields      = $3::jsonb,
		     screenshot_path  = $4,
		     current_page_url = $5,
		     error_message    = $6,
		     task_id          = $7,
		     submitted_at     = $8,
		     updated_at       = NOW()
		 WHERE id = $1 AND status = $9`,
		a.ID, a.Status, fields, a.ScreenshotPath, a.CurrentPageURL, a.ErrorMessage, a.TaskID, a.SubmittedAt, from,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStaleStatus
	}
	return nil
}

func (s *Store) AppendLog(ctx context.Context, entry model.ApplicationLogEntry) error {
	if err := insertLog(ctx, s.db, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, applicationID string) ([]model.ApplicationLogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text, application_id::text, action, details, screenshot_path, created_at
		 FROM application_logs WHERE application_id = $1 ORDER BY seq`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listLogs query: %w", err)
	}
	defer rows.Close()

	logs := make([]model.ApplicationLogEntry, 0)
	for rows.Next() {
		var e model.ApplicationLogEntry
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.Action, &e.Details, &e.ScreenshotPath, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("listLogs scan: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// ─── helpers ─────────────────────────────────────────────────────────────────

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, db execer, e model.ApplicationLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx,
		`INSERT INTO application_logs (id, application_id, action, details, screenshot_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ApplicationID, e.Action, e.Details, e.ScreenshotPath, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log %s: %w", e.Action, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleStatus) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s commit: %w", op, err)
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func marshalFields(fields []model.FormField) (string, error) {
	if fields == nil {
		fields = []model.FormField{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode form_fields: %w", err)
	}
	return string(b), nil
}

func unmarshalIfSet(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
