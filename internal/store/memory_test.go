package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TRA3H/hunter/internal/model"
	"github.com/TRA3H/hunter/internal/store"
)

func TestMemory_InsertJobDedup(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	ok, err := m.InsertJob(ctx, &model.JobPosting{Title: "a", DedupHash: "h"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.InsertJob(ctx, &model.JobPosting{Title: "b", DedupHash: "h"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, m.Jobs(), 1)
}

func TestMemory_ScanLifecycle(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	m.PutBoard(model.SourceBoard{ID: "b1", Name: "Acme", Enabled: true, JobsFoundLastScan: 7})
	m.PutBoard(model.SourceBoard{ID: "b2", Name: "Off"})

	boards, err := m.ListEnabledBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 1)

	ok, err := m.MarkScanRunning(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.MarkScanRunning(ctx, "b1")
	assert.False(t, ok)

	require.NoError(t, m.FinishScan(ctx, "b1", store.ScanResult{Status: model.ScanError, Error: "boom", At: time.Now()}))
	b, _ := m.GetBoard(ctx, "b1")
	assert.Equal(t, model.ScanError, b.LastScanStatus)
	assert.Equal(t, 7, b.JobsFoundLastScan, "failed scans keep the previous count")

	_, err = m.MarkScanRunning(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_TransitionIsConditional(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	app := &model.ApplicationRecord{Status: "pending", JobTitle: "Go Dev"}
	require.NoError(t, m.CreateApplication(ctx, app, model.ApplicationLogEntry{Action: "created"}))

	got, err := m.Transition(ctx, app.ID, "pending", "in_progress",
		model.ApplicationLogEntry{Action: "started"},
		func(a *model.ApplicationRecord) { a.Status = "ignored" })
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)

	_, err = m.Transition(ctx, app.ID, "pending", "cancelled", model.ApplicationLogEntry{Action: "cancelled"}, nil)
	assert.ErrorIs(t, err, store.ErrStaleStatus)

	logs, err := m.ListLogs(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "created", logs[0].Action)
	assert.Equal(t, "started", logs[1].Action)

	_, err = m.GetApplication(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, m.AppendLog(ctx, model.ApplicationLogEntry{ApplicationID: "nope"}), store.ErrNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	app := &model.ApplicationRecord{Status: "needs_review", Fields: []model.FormField{{FieldName: "a", Value: "1"}}}
	require.NoError(t, m.CreateApplication(ctx, app, model.ApplicationLogEntry{Action: "created"}))

	got, _ := m.GetApplication(ctx, app.ID)
	got.Fields[0].Value = "changed"

	again, _ := m.GetApplication(ctx, app.ID)
	assert.Equal(t, "1", again.Fields[0].Value)
}
