package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
)

// QuestionCache caches question reads with a TTL in front of another repository.
// Writes go through and drop the cached entry.
type QuestionCache struct {
	next  app.QuestionRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestion
	// gen counts invalidations per id; a load only fills the cache when no
	// write happened while it ran.
	gen map[string]uint64
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		next:  next,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuestion),
		gen:   make(map[string]uint64),
	}
}

func (c *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := c.lookup(id); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if q, ok := c.lookup(id); ok {
			return q, nil
		}
		c.mu.RLock()
		gen := c.gen[id]
		c.mu.RUnlock()

		q, err := c.next.GetQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		c.mu.Lock()
		if c.gen[id] == gen {
			c.cache[id] = cachedQuestion{
				question:  q,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return cloneQuestion(result.(domain.Question)), nil
}

func (c *QuestionCache) lookup(id string) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Question{}, false
	}
	return cloneQuestion(entry.question), true
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) error {
	defer c.invalidate(q.ID)
	return c.next.CreateQuestion(ctx, q)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) error {
	defer c.invalidate(q.ID)
	return c.next.UpdateQuestion(ctx, q)
}

func (c *QuestionCache) ListQuestionsByTeacher(ctx context.Context, teacherID string) ([]domain.Question, error) {
	return c.next.ListQuestionsByTeacher(ctx, teacherID)
}

func (c *QuestionCache) invalidate(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.gen[id]++
	c.mu.Unlock()
	c.sf.Forget(id)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
