// Package store defines the persistence collaborators of the discovery and
// application pipelines. Implementations: postgres (pgx) and Memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/TRA3H/hunter/internal/model"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleStatus is returned by Transition when the record is no longer in
// the status the caller observed.
var ErrStaleStatus = errors.New("store: application status changed concurrently")

// ─── Interfaces ──────────────────────────────────────────────────────────────

// ScanResult is what a finished scan records on its board.
type ScanResult struct {
	Status    model.ScanStatus
	Error     string
	JobsFound int
	At        time.Time
}

type Boards interface {
	ListEnabledBoards(ctx context.Context) ([]model.SourceBoard, error)
	GetBoard(ctx context.Context, id string) (*model.SourceBoard, error)
	// MarkScanRunning flags the board as running unless it already is, and
	// reports whether it did.
	MarkScanRunning(ctx context.Context, id string) (bool, error)
	FinishScan(ctx context.Context, id string, res ScanResult) error
}

type Jobs interface {
	// InsertJob stores job unless its dedup hash already exists, and
	// reports whether it was inserted.
	InsertJob(ctx context.Context, job *model.JobPosting) (bool, error)
	GetJob(ctx context.Context, id string) (*model.JobPosting, error)
}

type Profiles interface {
	// GetProfile returns the deployment's candidate profile or ErrNotFound.
	GetProfile(ctx context.Context) (*model.CandidateProfile, error)
}

// Mutation edits an application inside a transition, before it is written.
type Mutation func(app *model.ApplicationRecord)

type Applications interface {
	CreateApplication(ctx context.Context, app *model.ApplicationRecord, entry model.ApplicationLogEntry) error
	GetApplication(ctx context.Context, id string) (*model.ApplicationRecord, error)
	// Transition moves id from one status to another, applies mutate and
	// appends entry, all in one unit of work. It fails with ErrStaleStatus
	// when the stored status is not from.
	Transition(ctx context.Context, id, from, to string, entry model.ApplicationLogEntry, mutate Mutation) (*model.ApplicationRecord, error)
	// UpdateApplication applies mutate without a status change.
	UpdateApplication(ctx context.Context, id string, mutate Mutation) error
	AppendLog(ctx context.Context, entry model.ApplicationLogEntry) error
	ListLogs(ctx context.Context, applicationID string) ([]model.ApplicationLogEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	Boards
	Jobs
	Profiles
	Applications
}
