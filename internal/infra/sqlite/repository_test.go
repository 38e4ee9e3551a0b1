package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-response-service/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestQuestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Questions()
	created := time.Date(2025, 3, 2, 9, 0, 0, 123456789, time.UTC)

	q := domain.Question{
		ID:            "q1",
		TeacherID:     "kim",
		TeacherName:   "김선생",
		Type:          domain.QuestionTypePoll,
		Content:       "좋아하는 계절은?",
		PollOptions:   []string{"봄", "여름"},
		AllowMultiple: true,
		Status:        domain.StatusActive,
		CreatedAt:     created,
	}
	require.NoError(t, repo.CreateQuestion(ctx, q))

	got, err := repo.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, q.PollOptions, got.PollOptions)
	assert.True(t, got.AllowMultiple)
	assert.False(t, got.IsAnonymous)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.ClosedAt)

	closed := created.Add(time.Hour)
	q.Status = domain.StatusClosed
	q.ClosedAt = &closed
	require.NoError(t, repo.UpdateQuestion(ctx, q))
	got, err = repo.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(closed))

	_, err = repo.GetQuestion(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	missing := q
	missing.ID = "missing"
	assert.ErrorIs(t, repo.UpdateQuestion(ctx, missing), domain.ErrQuestionNotFound)
}

func TestListQuestionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t).Questions()
	base := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.CreateQuestion(ctx, domain.Question{
			ID: id, TeacherID: "kim", Type: domain.QuestionTypeText, Content: id,
			Status: domain.StatusActive, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	list, err := repo.ListQuestionsByTeacher(ctx, "kim")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)
}

func TestResponseLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	questions, repo := db.Questions(), db.Responses()
	base := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, questions.CreateQuestion(ctx, domain.Question{
		ID: "q1", TeacherID: "kim", Type: domain.QuestionTypePoll, Content: "?",
		PollOptions: []string{"x", "y"}, Status: domain.StatusActive, CreatedAt: base,
	}))

	first := domain.Response{ID: "r1", QuestionID: "q1", StudentNumber: "1", Nickname: "A", IsInProgress: true, CreatedAt: base.Add(time.Minute)}
	second := domain.Response{ID: "r2", QuestionID: "q1", StudentNumber: "2", Nickname: "B", IsInProgress: true, CreatedAt: base}
	require.NoError(t, repo.CreateResponse(ctx, first))
	require.NoError(t, repo.CreateResponse(ctx, second))

	list, err := repo.ListResponsesByQuestion(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.Nil(t, list[0].PollAnswer)

	submitted := base.Add(2 * time.Minute)
	first.IsInProgress = false
	first.SubmittedAt = &submitted
	first.PollAnswer = []string{"y"}
	require.NoError(t, repo.UpdateResponse(ctx, first))

	found, err := repo.FindByRespondent(ctx, "q1", "1", "A")
	require.NoError(t, err)
	assert.False(t, found.IsInProgress)
	assert.Equal(t, []string{"y"}, found.PollAnswer)
	require.NotNil(t, found.SubmittedAt)
	assert.True(t, found.SubmittedAt.Equal(submitted))

	_, err = repo.FindByRespondent(ctx, "q1", "1", "Z")
	assert.True(t, errors.Is(err, domain.ErrResponseNotFound))

	counts, err := repo.CountResponsesByQuestion(ctx, []string{"q1", "q2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"q1": 2}, counts)

	require.NoError(t, repo.DeleteResponse(ctx, "r1"))
	assert.ErrorIs(t, repo.DeleteResponse(ctx, "r1"), domain.ErrResponseNotFound)
	_, err = repo.GetResponse(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrResponseNotFound)
}

func TestResponseRequiresQuestion(t *testing.T) {
	repo := openTestDB(t).Responses()
	err := repo.CreateResponse(context.Background(), domain.Response{ID: "r1", QuestionID: "nope", CreatedAt: time.Now()})
	assert.Error(t, err)
}
