package memory

import (
	"sync"

	"live-response-service/internal/app"
)

// ViewRegistry is an in-memory implementation of app.ViewRegistry.
type ViewRegistry struct {
	mu    sync.RWMutex
	views map[string]map[string]*app.View
}

func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{views: make(map[string]map[string]*app.View)}
}

func (r *ViewRegistry) Add(v *app.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.views[v.QuestionID()]
	if !ok {
		byID = make(map[string]*app.View)
		r.views[v.QuestionID()] = byID
	}
	byID[v.ID()] = v
}

func (r *ViewRegistry) Remove(v *app.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.views[v.QuestionID()]
	if !ok {
		return
	}
	delete(byID, v.ID())
	if len(byID) == 0 {
		delete(r.views, v.QuestionID())
	}
}

func (r *ViewRegistry) ByQuestion(questionID string) []*app.View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*app.View, 0, len(r.views[questionID]))
	for _, v := range r.views[questionID] {
		out = append(out, v)
	}
	return out
}

// Count returns the number of open views of a question.
func (r *ViewRegistry) Count(questionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views[questionID])
}

// Questions returns the ids of questions with at least one open view.
func (r *ViewRegistry) Questions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.views))
	for qid := range r.views {
		out = append(out, qid)
	}
	return out
}
