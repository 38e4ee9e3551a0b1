package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"live-response-service/internal/domain"
	"live-response-service/internal/metrics"
)

// Dependencies wires a Service. Metrics, Logger, Clock and NewID are optional.
type Dependencies struct {
	Questions QuestionRepository
	Responses ResponseRepository
	Publisher ChangePublisher
	Changes   ChangeSubscriber
	Views     ViewRegistry
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
	NewID     func() string
}

// Service contains the question and response use cases.
type Service struct {
	questions QuestionRepository
	responses ResponseRepository
	publisher ChangePublisher
	changes   ChangeSubscriber
	views     ViewRegistry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		questions: deps.Questions,
		responses: deps.Responses,
		publisher: deps.Publisher,
		changes:   deps.Changes,
		views:     deps.Views,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validate:  newValidator(),
		now:       deps.Clock,
		newID:     deps.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// QuestionSummary is a dashboard row.
type QuestionSummary struct {
	domain.Question
	ResponseCount int `json:"responseCount"`
}

// ListQuery filters, sorts and pages a teacher's questions.
type ListQuery struct {
	Status    string `form:"status"`
	Search    string `form:"q"`
	Sort      string `form:"sort"`
	Direction string `form:"dir"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
}

// CreateQuestion validates the form, closes the teacher's active question and stores the new one.
func (s *Service) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (domain.Question, error) {
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	req.TeacherName = strings.TrimSpace(req.TeacherName)
	req.Content = strings.TrimSpace(req.Content)
	req.PollOptions = lo.Filter(lo.Map(req.PollOptions, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}), func(o string, _ int) bool { return o != "" })

	if err := s.validateStruct(req); err != nil {
		return domain.Question{}, err
	}

	switch req.Type {
	case domain.QuestionTypePoll:
		if len(req.PollOptions) < 2 {
			return domain.Question{}, domain.NewValidationError("pollOptions", "a poll needs at least 2 options")
		}
		if len(lo.Uniq(req.PollOptions)) != len(req.PollOptions) {
			return domain.Question{}, domain.NewValidationError("pollOptions", "options must be unique")
		}
	case domain.QuestionTypeText:
		req.PollOptions = nil
		req.AllowMultiple = false
	}
	if req.TeacherName == "" {
		req.TeacherName = req.TeacherID
	}

	if err := s.closeActive(ctx, req.TeacherID, ""); err != nil {
		return domain.Question{}, err
	}

	q := domain.Question{
		ID:            s.newID(),
		TeacherID:     req.TeacherID,
		TeacherName:   req.TeacherName,
		Type:          req.Type,
		Content:       req.Content,
		PollOptions:   req.PollOptions,
		AllowMultiple: req.AllowMultiple,
		IsAnonymous:   req.IsAnonymous,
		Status:        domain.StatusActive,
		CreatedAt:     s.now(),
	}
	if err := s.questions.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	s.logger.InfoContext(ctx, "question created",
		"question_id", q.ID,
		"teacher_id", q.TeacherID,
		"type", q.Type)
	return q, nil
}

// GetQuestion hides soft-deleted questions.
func (s *Service) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if q.Status == domain.StatusDeleted {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

// mutableQuestion loads a question for a status change.
func (s *Service) mutableQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if q.Status == domain.StatusDeleted {
		return domain.Question{}, domain.ErrQuestionDeleted
	}
	return q, nil
}

// CloseQuestion stops accepting new responses.
func (s *Service) CloseQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := s.mutableQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if q.Status == domain.StatusClosed {
		return q, nil
	}
	return s.setStatus(ctx, q, domain.StatusClosed)
}

// ReopenQuestion makes id the teacher's only active question.
func (s *Service) ReopenQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := s.mutableQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if err := s.closeActive(ctx, q.TeacherID, q.ID); err != nil {
		return domain.Question{}, err
	}
	if q.Status == domain.StatusActive {
		return q, nil
	}
	return s.setStatus(ctx, q, domain.StatusActive)
}

// DeleteQuestion soft-deletes a question. Its responses are kept for export.
func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	q, err := s.mutableQuestion(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.setStatus(ctx, q, domain.StatusDeleted)
	return err
}

// DeleteQuestions soft-deletes a selection of the teacher's questions. Every id
// is checked before any is deleted, so a bad selection changes nothing.
func (s *Service) DeleteQuestions(ctx context.Context, req DeleteQuestionsRequest) error {
	if err := s.validateStruct(req); err != nil {
		return err
	}
	selected := make([]domain.Question, 0, len(req.IDs))
	for _, id := range lo.Uniq(req.IDs) {
		q, err := s.mutableQuestion(ctx, id)
		if err != nil {
			return fmt.Errorf("question %s: %w", id, err)
		}
		if q.TeacherID != req.TeacherID {
			return fmt.Errorf("question %s: %w", id, domain.ErrQuestionNotFound)
		}
		selected = append(selected, q)
	}
	for _, q := range selected {
		if _, err := s.setStatus(ctx, q, domain.StatusDeleted); err != nil {
			return err
		}
	}
	s.logger.InfoContext(ctx, "questions deleted",
		"teacher_id", req.TeacherID,
		"count", len(selected))
	return nil
}

func (s *Service) setStatus(ctx context.Context, q domain.Question, status domain.QuestionStatus) (domain.Question, error) {
	q.Status = status
	switch status {
	case domain.StatusActive:
		q.ClosedAt = nil
	case domain.StatusClosed:
		at := s.now()
		q.ClosedAt = &at
	}
	if err := s.questions.UpdateQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("update question status: %w", err)
	}
	for _, v := range s.liveViews(q.ID) {
		v.setStatus(q.Status, q.ClosedAt)
	}
	s.logger.InfoContext(ctx, "question status changed",
		"question_id", q.ID,
		"status", status)
	return q, nil
}

// closeActive closes every active question of the teacher except keepID.
func (s *Service) closeActive(ctx context.Context, teacherID, keepID string) error {
	questions, err := s.questions.ListQuestionsByTeacher(ctx, teacherID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	for _, q := range questions {
		if q.Status != domain.StatusActive || q.ID == keepID {
			continue
		}
		if _, err := s.setStatus(ctx, q, domain.StatusClosed); err != nil {
			return err
		}
	}
	return nil
}

// ListQuestions returns one page of the teacher's dashboard.
func (s *Service) ListQuestions(ctx context.Context, teacherID string, query ListQuery) (Page[QuestionSummary], error) {
	questions, err := s.questions.ListQuestionsByTeacher(ctx, teacherID)
	if err != nil {
		return Page[QuestionSummary]{}, fmt.Errorf("list questions: %w", err)
	}

	status := strings.ToLower(strings.TrimSpace(query.Status))
	switch status {
	case "", "all", string(domain.StatusActive), string(domain.StatusClosed):
	default:
		return Page[QuestionSummary]{}, domain.NewValidationError("status", "must be one of: all active closed")
	}
	search := strings.ToLower(strings.TrimSpace(query.Search))

	questions = lo.Filter(questions, func(q domain.Question, _ int) bool {
		if q.Status == domain.StatusDeleted {
			return false
		}
		if status != "" && status != "all" && string(q.Status) != status {
			return false
		}
		return strings.Contains(strings.ToLower(q.Content), search)
	})

	counts, err := s.responses.CountResponsesByQuestion(ctx, lo.Map(questions, func(q domain.Question, _ int) string {
		return q.ID
	}))
	if err != nil {
		return Page[QuestionSummary]{}, fmt.Errorf("count responses: %w", err)
	}
	summaries := lo.Map(questions, func(q domain.Question, _ int) QuestionSummary {
		return QuestionSummary{Question: q, ResponseCount: counts[q.ID]}
	})

	if err := sortSummaries(summaries, query.Sort, query.Direction); err != nil {
		return Page[QuestionSummary]{}, err
	}
	return NewPage(summaries, query.Page, query.PageSize), nil
}

func sortSummaries(items []QuestionSummary, field, direction string) error {
	if field == "" {
		field = "createdAt"
		if direction == "" {
			direction = "desc"
		}
	}
	desc := strings.EqualFold(direction, "desc")
	var cmp func(a, b QuestionSummary) int
	switch field {
	case "createdAt":
		cmp = func(a, b QuestionSummary) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "status":
		// active first
		cmp = func(a, b QuestionSummary) int { return statusRank(a.Status) - statusRank(b.Status) }
	case "content":
		c := collate.New(language.Korean)
		cmp = func(a, b QuestionSummary) int { return c.CompareString(a.Content, b.Content) }
	case "type":
		cmp = func(a, b QuestionSummary) int { return strings.Compare(string(a.Type), string(b.Type)) }
	case "responseCount":
		cmp = func(a, b QuestionSummary) int { return a.ResponseCount - b.ResponseCount }
	default:
		return domain.NewValidationError("sort", domain.ErrInvalidSortField.Error())
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if desc {
			c = -c
		}
		return c < 0
	})
	return nil
}

func statusRank(s domain.QuestionStatus) int {
	if s == domain.StatusActive {
		return 0
	}
	return 1
}

// Watch opens a live view of one question. The view subscribes to the change
// feed before it loads the snapshot so no change is missed in between. It
// stops when ctx ends, the feed closes or Close is called.
func (s *Service) Watch(ctx context.Context, questionID string, order Order) (*View, error) {
	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if order.Field == "" {
		order = DefaultOrder
	}

	viewCtx, cancel := context.WithCancel(ctx)
	events, err := s.changes.Subscribe(viewCtx, questionID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	v := newView(q, order, s.now, s.metrics, s.logger)
	v.cancel = cancel
	v.reload = func(ctx context.Context) ([]domain.Response, error) {
		return s.responses.ListResponsesByQuestion(ctx, questionID)
	}
	if err := v.Resync(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("load responses: %w", err)
	}

	if s.views != nil {
		s.views.Add(v)
	}
	s.metrics.ViewOpened()
	v.onClose = func(v *View) {
		if s.views != nil {
			s.views.Remove(v)
		}
		s.metrics.ViewClosed()
		s.logger.Debug("live view closed", "view_id", v.ID(), "question_id", v.QuestionID())
	}
	go v.run(events)

	s.logger.DebugContext(ctx, "live view opened", "view_id", v.ID(), "question_id", questionID)
	return v, nil
}

func (s *Service) liveViews(questionID string) []*View {
	if s.views == nil {
		return nil
	}
	return s.views.ByQuestion(questionID)
}

// publish announces a persisted change. Failures are logged only: storage is
// the source of truth and views resync on reconnect.
func (s *Service) publish(ctx context.Context, kind domain.ChangeKind, r domain.Response) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.ChangeEvent{Kind: kind, Response: r}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event",
			"kind", kind,
			"response_id", r.ID,
			"question_id", r.QuestionID,
			"error", err)
	}
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrQuestionNotFound) || errors.Is(err, domain.ErrResponseNotFound)
}
