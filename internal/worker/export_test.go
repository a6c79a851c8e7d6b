package worker

import (
	"context"
	"time"

	"github.com/TRA3H/hunter/internal/queue"
)

func (p *Pool) SetSleep(f func(ctx context.Context, d time.Duration) error) { p.sleep = f }

func (p *Pool) Process(ctx context.Context, consumer string, t queue.Task) string {
	return p.process(ctx, consumer, t)
}
