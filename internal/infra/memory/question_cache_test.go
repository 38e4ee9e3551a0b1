package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-response-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	repo := &countingRepository{QuestionRepository: NewQuestionRepository()}
	_ = repo.CreateQuestion(context.Background(), sampleQuestion())
	cache := NewQuestionCache(repo, time.Minute)

	if _, err := cache.GetQuestion(context.Background(), "q-1"); err != nil {
		t.Fatalf("get question: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected repository once, got %d", repo.calls)
	}

	if _, err := cache.GetQuestion(context.Background(), "q-1"); err != nil {
		t.Fatalf("get question 2: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected cache hit, repository calls %d", repo.calls)
	}
}

func TestQuestionCacheInvalidatesOnUpdate(t *testing.T) {
	repo := &countingRepository{QuestionRepository: NewQuestionRepository()}
	cache := NewQuestionCache(repo, time.Minute)
	ctx := context.Background()

	q := sampleQuestion()
	if err := cache.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.GetQuestion(ctx, q.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	q.Status = domain.StatusClosed
	if err := cache.UpdateQuestion(ctx, q); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := cache.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != domain.StatusClosed || repo.calls != 2 {
		t.Fatalf("expected reload after update, status=%s calls=%d", got.Status, repo.calls)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	repo := &countingRepository{QuestionRepository: NewQuestionRepository()}
	_ = repo.CreateQuestion(context.Background(), sampleQuestion())
	cache := NewQuestionCache(repo, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetQuestion(context.Background(), "q-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetQuestion(context.Background(), "q-1")
	if repo.calls != 2 {
		t.Fatalf("expected reload after ttl, calls %d", repo.calls)
	}
}

func TestQuestionCacheDoesNotCacheMisses(t *testing.T) {
	repo := &countingRepository{QuestionRepository: NewQuestionRepository()}
	cache := NewQuestionCache(repo, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetQuestion(context.Background(), "missing"); !errors.Is(err, domain.ErrQuestionNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if repo.calls != 2 {
		t.Fatalf("expected misses to reach the repository, calls %d", repo.calls)
	}
}

func TestQuestionCacheDropsLoadRacingAnUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newStallingRepository()
	q := sampleQuestion()
	_ = repo.CreateQuestion(ctx, q)
	cache := NewQuestionCache(repo, time.Minute)

	loaded := make(chan domain.Question, 1)
	go func() {
		got, _ := cache.GetQuestion(ctx, q.ID)
		loaded <- got
	}()
	<-repo.reading

	q.Status = domain.StatusClosed
	if err := cache.UpdateQuestion(ctx, q); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(repo.release)
	if got := <-loaded; got.Status != domain.StatusActive {
		t.Fatalf("expected in-flight load to see the old row, got %s", got.Status)
	}

	got, err := cache.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != domain.StatusClosed {
		t.Fatalf("cache kept stale status %s after update", got.Status)
	}
}

// stallingRepository parks the first GetQuestion after it read the row
// until release is closed.
type stallingRepository struct {
	*QuestionRepository
	once    sync.Once
	reading chan struct{}
	release chan struct{}
}

func newStallingRepository() *stallingRepository {
	return &stallingRepository{
		QuestionRepository: NewQuestionRepository(),
		reading:            make(chan struct{}),
		release:            make(chan struct{}),
	}
}

func (r *stallingRepository) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := r.QuestionRepository.GetQuestion(ctx, id)
	r.once.Do(func() {
		close(r.reading)
		<-r.release
	})
	return q, err
}

type countingRepository struct {
	*QuestionRepository
	calls int
}

func (r *countingRepository) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	r.calls++
	return r.QuestionRepository.GetQuestion(ctx, id)
}

func sampleQuestion() domain.Question {
	return domain.Question{
		ID:          "q-1",
		TeacherID:   "kim",
		TeacherName: "Kim",
		Type:        domain.QuestionTypePoll,
		Content:     "Favourite season?",
		PollOptions: []string{"spring", "summer", "autumn", "winter"},
		Status:      domain.StatusActive,
		CreatedAt:   time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}
