// Package queue carries hunter's units of work over one Redis Stream read
// by a consumer group. A task's id is the stream id of its first enqueue
// and survives retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Type names a unit of work.
type Type string

const (
	TypeScan        Type = "scan"
	TypeApply       Type = "apply"
	TypeResume      Type = "resume"
	TypeOpenBrowser Type = "open_browser"
)

// Types lists every task type.
func Types() []Type { return []Type{TypeScan, TypeApply, TypeResume, TypeOpenBrowser} }

func (t Type) Valid() bool {
	for _, v := range Types() {
		if t == v {
			return true
		}
	}
	return false
}

// Task is one unit of work. Target is a board id for scans and an
// application id otherwise.
type Task struct {
	ID      string `json:"task_id,omitempty"`
	Type    Type   `json:"type"`
	Target  string `json:"target"`
	Attempt int    `json:"attempt"`

	MessageID  string    `json:"-"`
	EnqueuedAt time.Time `json:"-"`
}

const (
	taskField       = "task"
	enqueuedAtField = "enqueued_at"

	defaultMaxLen = 10000
)

// Queue produces and consumes Tasks on <prefix>:tasks.
type Queue struct {
	rdb    *redis.Client
	stream string
	group  string
	maxLen int64
}

func New(rdb *redis.Client, prefix, group string) *Queue {
	if prefix == "" {
		prefix = "hunter"
	}
	if group == "" {
		group = "hunter-workers"
	}
	return &Queue{rdb: rdb, stream: prefix + ":tasks", group: group, maxLen: defaultMaxLen}
}

func (q *Queue) Stream() string { return q.stream }
func (q *Queue) Group() string  { return q.group }

// ─── Producer ────────────────────────────────────────────────────────────────

// Enqueue appends t and returns its task id.
func (q *Queue) Enqueue(ctx context.Context, t Task) (string, error) {
	if !t.Type.Valid() {
		return "", fmt.Errorf("unknown task type %q", t.Type)
	}
	if t.Target == "" {
		return "", errors.New("task target is required")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("serialize task: %w", err)
	}

	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			taskField:       string(data),
			enqueuedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s task to %s: %w", t.Type, q.stream, err)
	}
	if t.ID != "" {
		return t.ID, nil
	}
	return id, nil
}

// Retry re-enqueues t as its next attempt under the same task id.
func (q *Queue) Retry(ctx context.Context, t Task) error {
	next := t
	next.Attempt++
	if next.ID == "" {
		next.ID = t.MessageID
	}
	_, err := q.Enqueue(ctx, next)
	return err
}

// Depth returns the stream length.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.XLen(ctx, q.stream).Result()
}

// ─── Consumer ────────────────────────────────────────────────────────────────

// EnsureGroup creates the consumer group, and the stream, if missing.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Read returns up to count new tasks for consumer, waiting at most block.
// A non-positive block does not wait.
func (q *Queue) Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Task, error) {
	if block <= 0 {
		block = -1
	}
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", q.stream, err)
	}

	var tasks []Task
	for _, s := range streams {
		tasks = append(tasks, q.parseAll(ctx, s.Messages)...)
	}
	return tasks, nil
}

// Reclaim takes over tasks another consumer has held for at least minIdle,
// typically because its process died mid-task.
func (q *Queue) Reclaim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Task, error) {
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending on %s: %w", q.stream, err)
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	msgs, err := q.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim on %s: %w", q.stream, err)
	}
	return q.parseAll(ctx, msgs), nil
}

// Touch resets the idle time of t, held by consumer, so Reclaim leaves a
// long-running task alone.
func (q *Queue) Touch(ctx context.Context, consumer string, t Task) error {
	return q.rdb.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		Messages: []string{t.MessageID},
	}).Err()
}

// Ack marks t as done.
func (q *Queue) Ack(ctx context.Context, t Task) error {
	return q.rdb.XAck(ctx, q.stream, q.group, t.MessageID).Err()
}

// parseAll decodes msgs. Malformed messages are acked and dropped so they
// are not redelivered forever.
func (q *Queue) parseAll(ctx context.Context, msgs []redis.XMessage) []Task {
	tasks := make([]Task, 0, len(msgs))
	for _, m := range msgs {
		t, err := parse(m)
		if err != nil {
			_ = q.rdb.XAck(ctx, q.stream, q.group, m.ID).Err()
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func parse(m redis.XMessage) (Task, error) {
	raw, ok := m.Values[taskField].(string)
	if !ok {
		return Task{}, errors.New("missing task data")
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if !t.Type.Valid() {
		return Task{}, fmt.Errorf("unknown task type %q", t.Type)
	}
	t.MessageID = m.ID
	if t.ID == "" {
		t.ID = m.ID
	}
	if s, ok := m.Values[enqueuedAtField].(string); ok {
		if at, err := time.Parse(time.RFC3339, s); err == nil {
			t.EnqueuedAt = at
		}
	}
	return t, nil
}
