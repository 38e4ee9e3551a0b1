package app

import (
	"context"

	"live-response-service/internal/domain"
)

// QuestionRepository persists questions. Deleted questions are kept and
// filtered by the service.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q domain.Question) error
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) error
	// ListQuestionsByTeacher returns the teacher's questions, newest first.
	ListQuestionsByTeacher(ctx context.Context, teacherID string) ([]domain.Question, error)
}

// ResponseRepository persists responses.
type ResponseRepository interface {
	CreateResponse(ctx context.Context, r domain.Response) error
	GetResponse(ctx context.Context, id string) (domain.Response, error)
	UpdateResponse(ctx context.Context, r domain.Response) error
	DeleteResponse(ctx context.Context, id string) error
	// FindByRespondent returns the newest response of one respondent or ErrResponseNotFound.
	FindByRespondent(ctx context.Context, questionID, studentNumber, nickname string) (domain.Response, error)
	// ListResponsesByQuestion returns responses oldest first.
	ListResponsesByQuestion(ctx context.Context, questionID string) ([]domain.Response, error)
	CountResponsesByQuestion(ctx context.Context, questionIDs []string) (map[string]int, error)
}

// ChangePublisher announces response changes after they were persisted.
type ChangePublisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// ChangeSubscriber streams the response changes of one question until ctx ends.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, questionID string) (<-chan domain.ChangeEvent, error)
}

// ViewRegistry tracks the live views open in this process.
type ViewRegistry interface {
	Add(v *View)
	Remove(v *View)
	ByQuestion(questionID string) []*View
}
