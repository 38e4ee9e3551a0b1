package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"live-response-service/internal/app"
	"live-response-service/internal/infra/memory"
)

// ViewRegistry keeps live views in a local map for in-process fan-out and
// marks each one in Redis with a liveness key so other instances and
// operators can see which questions are being watched:
//
//	SET live:question:{questionID}:view:{viewID} 1 EX ttl
type ViewRegistry struct {
	*memory.ViewRegistry
	client *redis.Client
	ttl    time.Duration
}

func NewViewRegistry(client *redis.Client, ttl time.Duration) *ViewRegistry {
	return &ViewRegistry{
		ViewRegistry: memory.NewViewRegistry(),
		client:       client,
		ttl:          ttl,
	}
}

func (r *ViewRegistry) Add(v *app.View) {
	r.ViewRegistry.Add(v)
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(v.QuestionID(), v.ID()), "1", r.ttl).Err()
}

func (r *ViewRegistry) Remove(v *app.View) {
	r.ViewRegistry.Remove(v)
	_ = r.client.Del(context.Background(), r.key(v.QuestionID(), v.ID())).Err()
}

// Refresh extends the liveness keys of the views open in this process.
func (r *ViewRegistry) Refresh(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, qid := range r.Questions() {
		for _, v := range r.ByQuestion(qid) {
			pipe.Expire(ctx, r.key(qid, v.ID()), r.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// KeepAlive refreshes the liveness keys every ttl/2 until ctx ends.
func (r *ViewRegistry) KeepAlive(ctx context.Context, logger *slog.Logger) {
	if r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("failed to refresh live view keys", "error", err)
			}
		}
	}
}

// LiveCount counts the views of a question across all instances.
func (r *ViewRegistry) LiveCount(ctx context.Context, questionID string) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.key(questionID, "*"), 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (r *ViewRegistry) key(questionID, viewID string) string {
	return "live:question:" + questionID + ":view:" + viewID
}
