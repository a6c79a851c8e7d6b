// Package events broadcasts pipeline status events over Redis pub/sub for
// the real-time UI. Delivery is best effort: a failed publish is logged and
// never returned.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/logger"
	"github.com/TRA3H/hunter/internal/model"
)

// Event types.
const (
	TypeNewJob            = "new_job"
	TypeScanError         = "scan_error"
	TypeApplicationUpdate = "application_update"
)

const maxErrorLen = 200

// Event is the wire envelope: {"type": ..., "data": {...}}.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Publisher emits events. Implementations must not block callers on
// transport failures.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// ─── Constructors ────────────────────────────────────────────────────────────

func NewJob(job model.JobPosting, boardName string) Event {
	return Event{Type: TypeNewJob, Data: map[string]any{
		"id":          job.ID,
		"title":       job.Title,
		"company":     job.Company,
		"location":    job.Location,
		"url":         job.URL,
		"match_score": job.MatchScore,
		"board_name":  boardName,
	}}
}

func ScanError(boardID, boardName, msg string) Event {
	return Event{Type: TypeScanError, Data: map[string]any{
		"board_id":   boardID,
		"board_name": boardName,
		"error":      logger.Truncate(msg, maxErrorLen),
	}}
}

// ApplicationUpdate reports an application status change; message is
// omitted when empty.
func ApplicationUpdate(appID, status, message string) Event {
	data := map[string]any{
		"application_id": appID,
		"status":         status,
	}
	if message != "" {
		data["message"] = logger.Truncate(message, maxErrorLen)
	}
	return Event{Type: TypeApplicationUpdate, Data: data}
}

// ─── Redis ───────────────────────────────────────────────────────────────────

// Redis publishes events as JSON on one pub/sub channel.
type Redis struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedis(rdb *redis.Client, channel string, log *zap.Logger) *Redis {
	return &Redis{rdb: rdb, channel: channel, log: log.Named("events")}
}

func (r *Redis) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("encode event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn("publish event failed", zap.String("type", ev.Type), zap.String("channel", r.channel), zap.Error(err))
	}
}

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters Events by type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
