package memory

import (
	"context"
	"sort"
	"sync"

	"live-response-service/internal/domain"
)

// QuestionRepository is an in-memory implementation of app.QuestionRepository.
type QuestionRepository struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
}

func NewQuestionRepository() *QuestionRepository {
	return &QuestionRepository{questions: make(map[string]domain.Question)}
}

func (r *QuestionRepository) CreateQuestion(_ context.Context, q domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (r *QuestionRepository) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

func (r *QuestionRepository) UpdateQuestion(_ context.Context, q domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[q.ID]; !ok {
		return domain.ErrQuestionNotFound
	}
	r.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (r *QuestionRepository) ListQuestionsByTeacher(_ context.Context, teacherID string) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Question
	for _, q := range r.questions {
		if q.TeacherID == teacherID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ResponseRepository is an in-memory implementation of app.ResponseRepository.
type ResponseRepository struct {
	mu        sync.RWMutex
	responses map[string]domain.Response
	order     []string
}

func NewResponseRepository() *ResponseRepository {
	return &ResponseRepository{responses: make(map[string]domain.Response)}
}

func (r *ResponseRepository) CreateResponse(_ context.Context, resp domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.responses[resp.ID]; !ok {
		r.order = append(r.order, resp.ID)
	}
	r.responses[resp.ID] = cloneResponse(resp)
	return nil
}

func (r *ResponseRepository) GetResponse(_ context.Context, id string) (domain.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.responses[id]
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	return cloneResponse(resp), nil
}

func (r *ResponseRepository) UpdateResponse(_ context.Context, resp domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.responses[resp.ID]; !ok {
		return domain.ErrResponseNotFound
	}
	r.responses[resp.ID] = cloneResponse(resp)
	return nil
}

func (r *ResponseRepository) DeleteResponse(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.responses[id]; !ok {
		return domain.ErrResponseNotFound
	}
	delete(r.responses, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *ResponseRepository) FindByRespondent(_ context.Context, questionID, studentNumber, nickname string) (domain.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found domain.Response
		ok    bool
	)
	for _, id := range r.order {
		resp := r.responses[id]
		if resp.QuestionID != questionID || resp.StudentNumber != studentNumber || resp.Nickname != nickname {
			continue
		}
		if !ok || resp.CreatedAt.After(found.CreatedAt) {
			found, ok = resp, true
		}
	}
	if !ok {
		return domain.Response{}, domain.ErrResponseNotFound
	}
	return cloneResponse(found), nil
}

func (r *ResponseRepository) ListResponsesByQuestion(_ context.Context, questionID string) ([]domain.Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Response{}
	for _, id := range r.order {
		if resp := r.responses[id]; resp.QuestionID == questionID {
			out = append(out, cloneResponse(resp))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ResponseRepository) CountResponsesByQuestion(_ context.Context, questionIDs []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int, len(questionIDs))
	for _, id := range questionIDs {
		counts[id] = 0
	}
	for _, resp := range r.responses {
		if _, ok := counts[resp.QuestionID]; ok {
			counts[resp.QuestionID]++
		}
	}
	return counts, nil
}

func cloneQuestion(q domain.Question) domain.Question {
	if q.PollOptions != nil {
		q.PollOptions = append([]string(nil), q.PollOptions...)
	}
	if q.ClosedAt != nil {
		t := *q.ClosedAt
		q.ClosedAt = &t
	}
	return q
}

func cloneResponse(r domain.Response) domain.Response {
	if r.PollAnswer != nil {
		r.PollAnswer = append([]string(nil), r.PollAnswer...)
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		r.SubmittedAt = &t
	}
	return r
}
