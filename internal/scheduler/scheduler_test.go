package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/queue"
	"github.com/TRA3H/hunter/internal/scheduler"
	"github.com/TRA3H/hunter/internal/store"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	fail  string
	added chan struct{}
}

func (r *recordingQueue) Enqueue(_ context.Context, t queue.Task) (string, error) {
	if t.Target == r.fail {
		return "", errors.New("redis down")
	}
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
	if r.added != nil {
		r.added <- struct{}{}
	}
	return "1-0", nil
}

func (r *recordingQueue) targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.tasks {
		out = append(out, t.Target)
	}
	return out
}

func TestCheckDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	st := store.NewMemory()
	st.PutBoard(model.SourceBoard{ID: "a", Name: "a-never", Enabled: true, ScanIntervalMinutes: 60})
	st.PutBoard(model.SourceBoard{ID: "b", Name: "b-stale", Enabled: true, ScanIntervalMinutes: 60, LastScanAt: &stale, LastScanStatus: model.ScanSuccess})
	st.PutBoard(model.SourceBoard{ID: "c", Name: "c-recent", Enabled: true, ScanIntervalMinutes: 60, LastScanAt: &recent, LastScanStatus: model.ScanSuccess})
	st.PutBoard(model.SourceBoard{ID: "d", Name: "d-disabled", Enabled: false, ScanIntervalMinutes: 60})
	st.PutBoard(model.SourceBoard{ID: "e", Name: "e-running", Enabled: true, ScanIntervalMinutes: 60, LastScanAt: &stale, LastScanStatus: model.ScanRunning})

	q := &recordingQueue{}
	s := scheduler.New(st, q, "", zap.NewNop())
	s.SetClock(func() time.Time { return now })

	assert.Equal(t, 2, s.CheckDue(context.Background()))
	assert.Equal(t, []string{"a", "b"}, q.targets())
	for _, task := range q.tasks {
		assert.Equal(t, queue.TypeScan, task.Type)
	}
}

func TestCheckDue_EnqueueFailureDoesNotStopOthers(t *testing.T) {
	st := store.NewMemory()
	st.PutBoard(model.SourceBoard{ID: "a", Name: "a", Enabled: true})
	st.PutBoard(model.SourceBoard{ID: "b", Name: "b", Enabled: true})

	q := &recordingQueue{fail: "a"}
	s := scheduler.New(st, q, "@every 1m", zap.NewNop())

	assert.Equal(t, 1, s.CheckDue(context.Background()))
	assert.Equal(t, []string{"b"}, q.targets())
}

func TestStart_RunsImmediately(t *testing.T) {
	st := store.NewMemory()
	st.PutBoard(model.SourceBoard{ID: "a", Name: "a", Enabled: true})

	q := &recordingQueue{added: make(chan struct{}, 1)}
	s := scheduler.New(st, q, "@every 1h", zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-q.added:
	case <-time.After(5 * time.Second):
		t.Fatal("startup check did not enqueue")
	}
	assert.Equal(t, []string{"a"}, q.targets())
}

func TestStart_InvalidSpec(t *testing.T) {
	s := scheduler.New(store.NewMemory(), &recordingQueue{}, "every now and then", zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
