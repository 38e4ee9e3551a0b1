package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
)

// QuestionCache caches questions in Redis (one hash per question) and falls
// back to the wrapped repository on a miss.
//
//	HSET question:{id} id .. teacher_id .. type .. poll_options [json] ..
//	INCR question:{id}:gen   on every write
type QuestionCache struct {
	client *redis.Client
	next   app.QuestionRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

// questionHash is the cached hash layout.
type questionHash struct {
	ID            string `mapstructure:"id"`
	TeacherID     string `mapstructure:"teacher_id"`
	TeacherName   string `mapstructure:"teacher_name"`
	Type          string `mapstructure:"type"`
	Content       string `mapstructure:"content"`
	PollOptions   string `mapstructure:"poll_options"`
	AllowMultiple bool   `mapstructure:"allow_multiple"`
	IsAnonymous   bool   `mapstructure:"is_anonymous"`
	Status        string `mapstructure:"status"`
	CreatedAt     string `mapstructure:"created_at"`
	ClosedAt      string `mapstructure:"closed_at"`
}

func NewQuestionCache(client *redis.Client, next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	key := c.key(id)
	if q, ok := c.lookup(ctx, key); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// another caller may have filled the cache
		if q, ok := c.lookup(ctx, key); ok {
			return q, nil
		}
		gen, err := c.generation(ctx, c.client, id)
		if err != nil {
			return c.next.GetQuestion(ctx, id)
		}
		q, err := c.next.GetQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		// a failed or aborted fill only costs the next reader a reload
		_ = c.store(ctx, q, gen)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// store writes the hash only if no invalidation bumped the generation since
// the load began. WATCH aborts the write when one lands in between.
func (c *QuestionCache) store(ctx context.Context, q domain.Question, gen int64) error {
	fields, err := encodeQuestion(q)
	if err != nil {
		return err
	}
	key := c.key(q.ID)
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, q.ID)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			if ttl := c.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, c.genKey(q.ID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *QuestionCache) generation(ctx context.Context, cmd getter, id string) (int64, error) {
	gen, err := cmd.Get(ctx, c.genKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *QuestionCache) lookup(ctx context.Context, key string) (domain.Question, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return domain.Question{}, false
	}
	q, err := decodeQuestion(fields)
	if err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) error {
	defer c.invalidate(ctx, q.ID)
	return c.next.CreateQuestion(ctx, q)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) error {
	defer c.invalidate(ctx, q.ID)
	return c.next.UpdateQuestion(ctx, q)
}

func (c *QuestionCache) ListQuestionsByTeacher(ctx context.Context, teacherID string) ([]domain.Question, error) {
	return c.next.ListQuestionsByTeacher(ctx, teacherID)
}

func (c *QuestionCache) invalidate(ctx context.Context, id string) {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key(id))
	pipe.Incr(ctx, c.genKey(id))
	_, _ = pipe.Exec(ctx)
	c.sf.Forget(id)
}

func (c *QuestionCache) key(id string) string {
	return "question:" + id
}

func (c *QuestionCache) genKey(id string) string {
	return "question:" + id + ":gen"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func encodeQuestion(q domain.Question) (map[string]interface{}, error) {
	options, err := json.Marshal(q.PollOptions)
	if err != nil {
		return nil, err
	}
	closedAt := ""
	if q.ClosedAt != nil {
		closedAt = q.ClosedAt.Format(time.RFC3339Nano)
	}
	return map[string]interface{}{
		"id":             q.ID,
		"teacher_id":     q.TeacherID,
		"teacher_name":   q.TeacherName,
		"type":           string(q.Type),
		"content":        q.Content,
		"poll_options":   string(options),
		"allow_multiple": strconv.FormatBool(q.AllowMultiple),
		"is_anonymous":   strconv.FormatBool(q.IsAnonymous),
		"status":         string(q.Status),
		"created_at":     q.CreatedAt.Format(time.RFC3339Nano),
		"closed_at":      closedAt,
	}, nil
}

func decodeQuestion(fields map[string]string) (domain.Question, error) {
	var h questionHash
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &h,
	})
	if err != nil {
		return domain.Question{}, err
	}
	if err := decoder.Decode(fields); err != nil {
		return domain.Question{}, fmt.Errorf("decode cached question: %w", err)
	}
	if h.ID == "" {
		return domain.Question{}, errors.New("cached question has no id")
	}

	q := domain.Question{
		ID:            h.ID,
		TeacherID:     h.TeacherID,
		TeacherName:   h.TeacherName,
		Type:          domain.QuestionType(h.Type),
		Content:       h.Content,
		AllowMultiple: h.AllowMultiple,
		IsAnonymous:   h.IsAnonymous,
		Status:        domain.QuestionStatus(h.Status),
	}
	if h.PollOptions != "" && h.PollOptions != "null" {
		if err := json.Unmarshal([]byte(h.PollOptions), &q.PollOptions); err != nil {
			return domain.Question{}, fmt.Errorf("decode poll options: %w", err)
		}
	}
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, h.CreatedAt); err != nil {
		return domain.Question{}, fmt.Errorf("decode created_at: %w", err)
	}
	if h.ClosedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, h.ClosedAt)
		if err != nil {
			return domain.Question{}, fmt.Errorf("decode closed_at: %w", err)
		}
		q.ClosedAt = &at
	}
	return q, nil
}
