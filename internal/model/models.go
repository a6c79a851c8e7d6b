// Package model defines the data structures shared across hunter's
// discovery and application pipelines.
package model

import (
	"time"
)

// ─── Discovery ───────────────────────────────────────────────────────────────

// ScanStatus is the outcome of a board's most recent scan.
type ScanStatus string

const (
	ScanNever   ScanStatus = "never"
	ScanRunning ScanStatus = "running"
	ScanSuccess ScanStatus = "success"
	ScanError   ScanStatus = "error"
)

// Pagination modes understood by the generic strategy.
const (
	PaginationClick          = "click"
	PaginationInfiniteScroll = "infinite_scroll"
	PaginationURLParam       = "url_param"
)

// ScraperConfig is the per-board extraction configuration, stored as JSONB.
type ScraperConfig struct {
	Selectors  map[string]string `json:"selectors,omitempty"`
	Pagination string            `json:"pagination_type,omitempty"`
	PageParam  string            `json:"url_page_param,omitempty"`
	MaxPages   int               `json:"max_pages,omitempty"`
}

// SourceBoard mirrors the boards table row relevant to scanning.
type SourceBoard struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	URL                 string        `json:"url"`
	ScraperType         string        `json:"scraper_type"`
	ScraperConfig       ScraperConfig `json:"scraper_config"`
	Keywords            []string      `json:"keywords"`      // any match keeps the job
	ExcludeTerms        []string      `json:"exclude_terms"` // any match discards the job
	ScanIntervalMinutes int           `json:"scan_interval_minutes"`
	Enabled             bool          `json:"enabled"`
	LastScanAt          *time.Time    `json:"last_scan_at,omitempty"`
	LastScanStatus      ScanStatus    `json:"last_scan_status"`
	LastScanError       string        `json:"last_scan_error,omitempty"`
	JobsFoundLastScan   int           `json:"jobs_found_last_scan"`
}

// IsDue reports whether the board should be scanned at now: enabled, not
// already running, and either never scanned or past its interval.
func (b SourceBoard) IsDue(now time.Time) bool {
	if !b.Enabled || b.LastScanStatus == ScanRunning {
		return false
	}
	if b.LastScanAt == nil {
		return true
	}
	interval := time.Duration(b.ScanIntervalMinutes) * time.Minute
	return now.Sub(*b.LastScanAt) >= interval
}

// RawJob is one record pulled off a listing page before dedup and scoring.
type RawJob struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Company        string `json:"company,omitempty"`
	Location       string `json:"location,omitempty"`
	SalaryText     string `json:"salary,omitempty"`
	PostedDateText string `json:"posted_date,omitempty"`
	Description    string `json:"description,omitempty"`
}

// JobPosting is a deduplicated, scored job stored under its board.
type JobPosting struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"board_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	URL         string     `json:"url"`
	PostedDate  *time.Time `json:"posted_date,omitempty"`
	SalaryMin   *int       `json:"salary_min,omitempty"`
	SalaryMax   *int       `json:"salary_max,omitempty"`
	Description string     `json:"description"`
	DedupHash   string     `json:"dedup_hash"`
	MatchScore  float64    `json:"match_score"`
	IsNew       bool       `json:"is_new"`
	IsHidden    bool       `json:"is_hidden"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ─── Candidate ───────────────────────────────────────────────────────────────

// CandidateProfile is the single applicant profile of a deployment.
type CandidateProfile struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
	WebsiteURL  string `json:"website_url"`

	// EEO answers; nil means the candidate has not answered.
	USCitizen         *bool  `json:"us_citizen"`
	SponsorshipNeeded *bool  `json:"sponsorship_needed"`
	VeteranStatus     string `json:"veteran_status"`
	DisabilityStatus  string `json:"disability_status"`
	Gender            string `json:"gender"`
	Ethnicity         string `json:"ethnicity"`

	ResumeFilename      string `json:"resume_filename"`
	ResumePath          string `json:"resume_path"`
	CoverLetterTemplate string `json:"cover_letter_template"`

	DesiredTitle     string `json:"desired_title"`
	DesiredLocations string `json:"desired_locations"` // comma-separated
	MinSalary        *int   `json:"min_salary,omitempty"`
	RemotePreference string `json:"remote_preference"` // remote, hybrid, onsite, any

	Education      []Education      `json:"education"`
	WorkExperience []WorkExperience `json:"work_experience"`
}

type Education struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study"`
	GPA            string `json:"gpa"`
	GraduationYear *int   `json:"graduation_year,omitempty"`
}

type WorkExperience struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	StartDate   string `json:"start_date"` // YYYY-MM
	EndDate     string `json:"end_date"`   // YYYY-MM or "present"
	Description string `json:"description"`
}

// ─── Applications ────────────────────────────────────────────────────────────

// Field fill outcomes.
const (
	FieldFilled     = "filled"
	FieldNeedsInput = "needs_input"
)

// FormField describes one form control and the value chosen for it.
// Selector is only meaningful while the page that produced it is open and
// is never persisted.
type FormField struct {
	FieldName  string   `json:"field_name"`
	FieldKey   string   `json:"field_key"`
	UIType     string   `json:"field_type"`
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Status     string   `json:"status"`
	Options    []string `json:"options"`
	Selector   string   `json:"-"`
}

// ApplicationRecord is one application attempt and its automation state.
// Fields is keyed by FieldName and kept in form order.
type ApplicationRecord struct {
	ID             string      `json:"id"`
	JobID          *string     `json:"job_id,omitempty"`
	JobTitle       string      `json:"job_title"`
	Company        string      `json:"company"`
	URL            string      `json:"url"`
	Status         string      `json:"status"`
	Fields         []FormField `json:"form_fields"`
	ScreenshotPath string      `json:"screenshot_path"`
	CurrentPageURL string      `json:"current_page_url"`
	ErrorMessage   string      `json:"error_message"`
	TaskID         string      `json:"task_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
}

// ApplicationLogEntry is one append-only timeline row.
type ApplicationLogEntry struct {
	ID             string    `json:"id"`
	ApplicationID  string    `json:"application_id"`
	Action         string    `json:"action"`
	Details        string    `json:"details"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
