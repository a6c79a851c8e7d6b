package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/store"
	"github.com/TRA3H/hunter/internal/store/postgres"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, postgres.New(mock)
}

var appCols = []string{
	"id", "job_id", "job_title", "company", "url", "status", "form_fields",
	"screenshot_path", "current_page_url", "error_message", "task_id", "created_at", "updated_at", "submitted_at",
}

func appRow(status string) *pgxmock.Rows {
	jobID := "job-1"
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(appCols).AddRow(
		"app-1", &jobID, "Backend Engineer", "Acme", "https://acme.example/jobs/1", status,
		[]byte(`[{"field_name":"email","field_key":"email","field_type":"text","value":"jane@example.com","confidence":0.85,"status":"filled","options":[]}]`),
		"", "", "", "", now, now, nil,
	)
}

// ── Jobs ────────────────────────────────────────────────────────────────────

func TestInsertJob_Dedup(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "board-1", "Go Dev", "Acme", "Remote", "https://acme.example/jobs/1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "", "hash-1", 82.5, true, false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`ON CONFLICT \(dedup_hash\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	job := &model.JobPosting{
		BoardID: "board-1", Title: "Go Dev", Company: "Acme", Location: "Remote",
		URL: "https://acme.example/jobs/1", DedupHash: "hash-1", MatchScore: 82.5, IsNew: true,
	}
	inserted, err := s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, job.ID)

	dup := *job
	dup.ID = ""
	inserted, err = s.InsertJob(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Boards ──────────────────────────────────────────────────────────────────

func TestGetBoard(t *testing.T) {
	mock, s := newMock(t)

	cols := []string{"id", "name", "url", "scraper_type", "scraper_config", "keywords", "exclude_terms",
		"scan_interval_minutes", "enabled", "last_scan_at", "last_scan_status", "last_scan_error", "jobs_found_last_scan"}
	mock.ExpectQuery(`(?s)SELECT .+ FROM boards WHERE id = \$1`).
		WithArgs("board-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"board-1", "Acme", "https://acme.example/careers", "generic",
			[]byte(`{"selectors":{"job_card":".job"},"pagination_type":"url_param","max_pages":3}`),
			[]string{"go"}, []string{"crypto"}, 60, true, nil, "never", "", 0,
		))
	mock.ExpectQuery(`(?s)SELECT .+ FROM boards WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	b, err := s.GetBoard(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, model.ScraperConfig{
		Selectors:  map[string]string{"job_card": ".job"},
		Pagination: model.PaginationURLParam,
		MaxPages:   3,
	}, b.ScraperConfig)
	assert.Equal(t, model.ScanNever, b.LastScanStatus)
	assert.Nil(t, b.LastScanAt)

	_, err = s.GetBoard(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScanRunning(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE boards SET last_scan_status = 'running'`).
		WithArgs("b1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec(`UPDATE boards SET last_scan_status = 'running'`).
		WithArgs("b2").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("b2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectExec(`UPDATE boards SET last_scan_status = 'running'`).
		WithArgs("nope").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := s.MarkScanRunning(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkScanRunning(ctx, "b2")
	require.NoError(t, err)
	assert.False(t, ok, "already running")

	_, err = s.MarkScanRunning(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishScan(t *testing.T) {
	mock, s := newMock(t)
	at := time.Now()

	found := 4
	mock.ExpectExec(`UPDATE boards`).
		WithArgs("b1", at, "success", "", &found).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishScan(context.Background(), "b1", store.ScanResult{Status: model.ScanSuccess, JobsFound: 4, At: at})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Applications ────────────────────────────────────────────────────────────

func TestGetApplication(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`(?s)SELECT .+ FROM applications WHERE id = \$1`).
		WithArgs("app-1").WillReturnRows(appRow("needs_review"))

	app, err := s.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "needs_review", app.Status)
	require.NotNil(t, app.JobID)
	assert.Equal(t, "job-1", *app.JobID)
	require.Len(t, app.Fields, 1)
	assert.Equal(t, "jane@example.com", app.Fields[0].Value)
	assert.Nil(t, app.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_CommitsStatusAndLogTogether(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .+ FROM applications WHERE id = \$1 FOR UPDATE`).
		WithArgs("app-1").WillReturnRows(appRow("ready_to_submit"))
	mock.ExpectExec(`UPDATE applications`).
		WithArgs("app-1", "in_progress", pgxmock.AnyArg(), "", "", "", "task-9", pgxmock.AnyArg(), "ready_to_submit").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO application_logs`).
		WithArgs(pgxmock.AnyArg(), "app-1", "resuming", "Resuming application", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	app, err := s.Transition(context.Background(), "app-1", "ready_to_submit", "in_progress",
		model.ApplicationLogEntry{Action: "resuming", Details: "Resuming application"},
		func(a *model.ApplicationRecord) { a.TaskID = "task-9" },
	)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", app.Status)
	assert.Equal(t, "task-9", app.TaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_StaleStatusRollsBack(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("app-1").WillReturnRows(appRow("cancelled"))
	mock.ExpectRollback()

	_, err := s.Transition(context.Background(), "app-1", "in_progress", "needs_review",
		model.ApplicationLogEntry{Action: "needs_review"}, nil)
	assert.ErrorIs(t, err, store.ErrStaleStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplication(t *testing.T) {
	mock, s := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO applications`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Go Dev", "Acme", "https://acme.example/1", "pending", "[]", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`INSERT INTO application_logs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "created", "Application created", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	app := &model.ApplicationRecord{JobTitle: "Go Dev", Company: "Acme", URL: "https://acme.example/1", Status: "pending"}
	err := s.CreateApplication(context.Background(), app, model.ApplicationLogEntry{Action: "created", Details: "Application created"})
	require.NoError(t, err)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, now, app.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLogs(t *testing.T) {
	mock, s := newMock(t)
	at := time.Now()
	mock.ExpectQuery(`FROM application_logs WHERE application_id = \$1 ORDER BY seq`).
		WithArgs("app-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "application_id", "action", "details", "screenshot_path", "created_at"}).
			AddRow("l1", "app-1", "created", "Application created", "", at).
			AddRow("l2", "app-1", "started", "Starting auto-apply", "", at))

	logs, err := s.ListLogs(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "started", logs[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Profile ─────────────────────────────────────────────────────────────────

func TestGetProfile(t *testing.T) {
	mock, s := newMock(t)
	yes := true
	cols := []string{"id", "first_name", "last_name", "email", "phone", "linkedin_url", "website_url",
		"us_citizen", "sponsorship_needed", "veteran_status", "disability_status", "gender", "ethnicity",
		"resume_filename", "resume_path", "cover_letter_template",
		"desired_title", "desired_locations", "min_salary", "remote_preference",
		"education", "work_experience"}
	mock.ExpectQuery(`FROM profiles`).WillReturnRows(pgxmock.NewRows(cols).AddRow(
		"p1", "Jane", "Doe", "jane@example.com", "", "", "",
		&yes, nil, "", "", "", "",
		"cv.pdf", "/data/cv.pdf", "",
		"Backend Engineer", "Remote, Toronto", nil, "remote",
		[]byte(`[{"school":"UofT","degree":"BSc"}]`), []byte(`[]`),
	))
	mock.ExpectQuery(`FROM profiles`).WillReturnError(pgx.ErrNoRows)

	p, err := s.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", p.FirstName)
	require.NotNil(t, p.USCitizen)
	assert.True(t, *p.USCitizen)
	assert.Nil(t, p.SponsorshipNeeded)
	require.Len(t, p.Education, 1)
	assert.Equal(t, "UofT", p.Education[0].School)

	_, err = s.GetProfile(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
