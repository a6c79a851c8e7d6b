package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TRA3H/hunter/internal/model"
)

// Memory is an in-process Store. Values are copied in and out so callers
// never share state with it.
type Memory struct {
	mu      sync.Mutex
	boards  map[string]model.SourceBoard
	jobs    map[string]model.JobPosting
	hashes  map[string]string
	profile *model.CandidateProfile
	apps    map[string]model.ApplicationRecord
	logs    map[string][]model.ApplicationLogEntry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		boards: make(map[string]model.SourceBoard),
		jobs:   make(map[string]model.JobPosting),
		hashes: make(map[string]string),
		apps:   make(map[string]model.ApplicationRecord),
		logs:   make(map[string][]model.ApplicationLogEntry),
		now:    time.Now,
	}
}

// ─── Seeding ─────────────────────────────────────────────────────────────────

func (m *Memory) PutBoard(b model.SourceBoard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.boards[b.ID] = b
}

func (m *Memory) PutProfile(p model.CandidateProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
}

// Jobs returns every stored job, oldest first.
func (m *Memory) Jobs() []model.JobPosting {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobPosting, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// ─── Boards ──────────────────────────────────────────────────────────────────

func (m *Memory) ListEnabledBoards(_ context.Context) ([]model.SourceBoard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SourceBoard
	for _, b := range m.boards {
		if b.Enabled {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (m *Memory) GetBoard(_ context.Context, id string) (*model.SourceBoard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *Memory) MarkScanRunning(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.LastScanStatus == model.ScanRunning {
		return false, nil
	}
	b.LastScanStatus = model.ScanRunning
	m.boards[id] = b
	return true, nil
}

func (m *Memory) FinishScan(_ context.Context, id string, res ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[id]
	if !ok {
		return ErrNotFound
	}
	at := res.At
	b.LastScanAt = &at
	b.LastScanStatus = res.Status
	b.LastScanError = res.Error
	if res.Status == model.ScanSuccess {
		b.JobsFoundLastScan = res.JobsFound
	}
	m.boards[id] = b
	return nil
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (m *Memory) InsertJob(_ context.Context, job *model.JobPosting) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.hashes[job.DedupHash]; dup {
		return false, nil
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = m.now()
	}
	m.jobs[job.ID] = *job
	m.hashes[job.DedupHash] = job.ID
	return true, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

// ─── Profile ─────────────────────────────────────────────────────────────────

func (m *Memory) GetProfile(_ context.Context) (*model.CandidateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, ErrNotFound
	}
	p := *m.profile
	return &p, nil
}

// ─── Applications ────────────────────────────────────────────────────────────

func (m *Memory) CreateApplication(_ context.Context, app *model.ApplicationRecord, entry model.ApplicationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := m.now()
	app.CreatedAt, app.UpdatedAt = now, now
	m.apps[app.ID] = cloneApp(*app)
	m.appendLocked(app.ID, entry)
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*model.ApplicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	a = cloneApp(a)
	return &a, nil
}

func (m *Memory) Transition(_ context.Context, id, from, to string, entry model.ApplicationLogEntry, mutate Mutation) (*model.ApplicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a = cloneApp(a)
	if mutate != nil {
		mutate(&a)
	}
	a.ID = id
	a.Status = to
	a.UpdatedAt = m.now()
	m.apps[id] = a
	m.appendLocked(id, entry)

	out := cloneApp(a)
	return &out, nil
}

func (m *Memory) UpdateApplication(_ context.Context, id string, mutate Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return ErrNotFound
	}
	a = cloneApp(a)
	status := a.Status
	mutate(&a)
	a.ID, a.Status = id, status
	a.UpdatedAt = m.now()
	m.apps[id] = a
	return nil
}

func (m *Memory) AppendLog(_ context.Context, entry model.ApplicationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[entry.ApplicationID]; !ok {
		return ErrNotFound
	}
	m.appendLocked(entry.ApplicationID, entry)
	return nil
}

func (m *Memory) ListLogs(_ context.Context, applicationID string) ([]model.ApplicationLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.logs[applicationID]), nil
}

func (m *Memory) appendLocked(appID string, entry model.ApplicationLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.ApplicationID = appID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.logs[appID] = append(m.logs[appID], entry)
}

func cloneApp(a model.ApplicationRecord) model.ApplicationRecord {
	a.Fields = slices.Clone(a.Fields)
	for i := range a.Fields {
		a.Fields[i].Options = slices.Clone(a.Fields[i].Options)
	}
	return a
}
