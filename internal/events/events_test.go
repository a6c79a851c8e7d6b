package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TRA3H/hunter/internal/events"
	"github.com/TRA3H/hunter/internal/model"
)

func TestRedis_PublishesEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "hunter:ws_broadcast")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := events.NewRedis(rdb, "hunter:ws_broadcast", zap.NewNop())
	pub.Publish(ctx, events.NewJob(model.JobPosting{ID: "j1", Title: "Go Dev", MatchScore: 87.5}, "Acme"))

	select {
	case msg := <-sub.Channel():
		var got struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, events.TypeNewJob, got.Type)
		assert.Equal(t, "j1", got.Data["id"])
		assert.Equal(t, 87.5, got.Data["match_score"])
		assert.Equal(t, "Acme", got.Data["board_name"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedis_FailureIsLoggedNotReturned(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	core, logs := observer.New(zap.WarnLevel)
	pub := events.NewRedis(rdb, "ch", zap.New(core))
	pub.Publish(context.Background(), events.ApplicationUpdate("a1", "failed", "boom"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "publish event failed", logs.All()[0].Message)
}

func TestEventPayloads(t *testing.T) {
	ev := events.ScanError("b1", "Acme", strings.Repeat("x", 500))
	assert.Len(t, ev.Data["error"], 200)

	ev = events.ApplicationUpdate("a1", "needs_review", "")
	_, hasMessage := ev.Data["message"]
	assert.False(t, hasMessage)

	rec := &events.Recorder{}
	rec.Publish(context.Background(), events.ApplicationUpdate("a1", "submitted", "done"))
	rec.Publish(context.Background(), events.ScanError("b1", "Acme", errors.New("x").Error()))
	assert.Len(t, rec.Events(), 2)
	require.Len(t, rec.OfType(events.TypeApplicationUpdate), 1)
	assert.Equal(t, "done", rec.OfType(events.TypeApplicationUpdate)[0].Data["message"])
}
