package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"live-response-service/internal/domain"
	"live-response-service/internal/export"
	"live-response-service/internal/responses"
	"live-response-service/internal/wordcloud"
)

// BeginResponse registers a student on an active question and returns their
// in-progress response. A student resuming an unfinished response gets the
// same row back; a student who already submitted is rejected. Anonymous
// questions create a new response on every call.
func (s *Service) BeginResponse(ctx context.Context, questionID string, req BeginRequest) (domain.Response, error) {
	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.Response{}, err
	}
	if q.Status != domain.StatusActive {
		return domain.Response{}, domain.ErrQuestionClosed
	}

	number := strings.TrimSpace(req.StudentNumber)
	nickname := strings.TrimSpace(req.Nickname)
	if q.IsAnonymous {
		number, nickname = domain.AnonymousRespondent, domain.AnonymousRespondent
	} else {
		req.StudentNumber, req.Nickname = number, nickname
		if err := s.validateStruct(req); err != nil {
			return domain.Response{}, err
		}
		var missing domain.ValidationErrors
		if number == "" {
			missing = append(missing, domain.ValidationError{Field: "studentNumber", Message: "is required", Rule: "required"})
		}
		if nickname == "" {
			missing = append(missing, domain.ValidationError{Field: "nickname", Message: "is required", Rule: "required"})
		}
		if len(missing) > 0 {
			return domain.Response{}, missing
		}

		existing, err := s.responses.FindByRespondent(ctx, q.ID, number, nickname)
		switch {
		case err == nil:
			return s.resume(ctx, existing)
		case !errors.Is(err, domain.ErrResponseNotFound):
			return domain.Response{}, fmt.Errorf("find response: %w", err)
		}
	}

	r := domain.Response{
		ID:            s.newID(),
		QuestionID:    q.ID,
		StudentNumber: number,
		Nickname:      nickname,
		IsInProgress:  true,
		CreatedAt:     s.now(),
	}
	if err := s.responses.CreateResponse(ctx, r); err != nil {
		return domain.Response{}, fmt.Errorf("create response: %w", err)
	}
	s.publish(ctx, domain.ChangeInsert, r)
	return r, nil
}

func (s *Service) resume(ctx context.Context, r domain.Response) (domain.Response, error) {
	if !r.IsInProgress {
		return domain.Response{}, domain.ErrAlreadySubmitted
	}
	r.CreatedAt = s.now()
	if err := s.responses.UpdateResponse(ctx, r); err != nil {
		return domain.Response{}, fmt.Errorf("resume response: %w", err)
	}
	s.publish(ctx, domain.ChangeUpdate, r)
	s.logger.DebugContext(ctx, "response resumed", "response_id", r.ID, "question_id", r.QuestionID)
	return r, nil
}

// SubmitResponse finalizes an in-progress response. It is accepted even if
// the question closed after the student began.
func (s *Service) SubmitResponse(ctx context.Context, responseID string, req SubmitRequest) (domain.Response, error) {
	r, err := s.responses.GetResponse(ctx, responseID)
	if err != nil {
		return domain.Response{}, err
	}
	if !r.IsInProgress {
		return domain.Response{}, domain.ErrAlreadySubmitted
	}
	q, err := s.GetQuestion(ctx, r.QuestionID)
	if err != nil {
		return domain.Response{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Response{}, err
	}

	switch q.Type {
	case domain.QuestionTypePoll:
		answers, err := pollAnswers(q, req.PollAnswer)
		if err != nil {
			return domain.Response{}, err
		}
		r.PollAnswer = answers
		r.TextAnswer, r.DrawingData = "", ""
	default:
		text := strings.TrimSpace(req.TextAnswer)
		if text == "" && req.DrawingData == "" {
			return domain.Response{}, domain.NewValidationError("textAnswer", "a text answer or a drawing is required")
		}
		r.TextAnswer, r.DrawingData = text, req.DrawingData
		r.PollAnswer = nil
	}

	at := s.now()
	r.IsInProgress = false
	r.SubmittedAt = &at
	if err := s.responses.UpdateResponse(ctx, r); err != nil {
		return domain.Response{}, fmt.Errorf("submit response: %w", err)
	}
	s.metrics.Submitted(string(q.Type))
	s.publish(ctx, domain.ChangeUpdate, r)
	s.logger.InfoContext(ctx, "response submitted",
		"response_id", r.ID,
		"question_id", r.QuestionID)
	return r, nil
}

func pollAnswers(q domain.Question, raw []string) ([]string, error) {
	answers := lo.Uniq(lo.Filter(lo.Map(raw, func(a string, _ int) string {
		return strings.TrimSpace(a)
	}), func(a string, _ int) bool { return a != "" }))

	if len(answers) == 0 {
		return nil, domain.NewValidationError("pollAnswer", "select at least one option")
	}
	if !q.AllowMultiple && len(answers) > 1 {
		return nil, domain.NewValidationError("pollAnswer", "only one option may be selected")
	}
	if unknown, ok := lo.Find(answers, func(a string) bool { return !q.HasOption(a) }); ok {
		return nil, domain.NewValidationError("pollAnswer", fmt.Sprintf("unknown option %q", unknown))
	}
	return answers, nil
}

// DeleteResponse removes a response on the teacher's request.
func (s *Service) DeleteResponse(ctx context.Context, responseID string) error {
	r, err := s.responses.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if err := s.responses.DeleteResponse(ctx, responseID); err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	s.publish(ctx, domain.ChangeDelete, domain.Response{ID: r.ID, QuestionID: r.QuestionID})
	s.logger.InfoContext(ctx, "response deleted", "response_id", r.ID, "question_id", r.QuestionID)
	return nil
}

// ListResponses returns all responses of a question, oldest first.
func (s *Service) ListResponses(ctx context.Context, questionID string) ([]domain.Response, error) {
	if _, err := s.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	return s.responses.ListResponsesByQuestion(ctx, questionID)
}

// ExportResponses renders the submitted responses in submission order.
func (s *Service) ExportResponses(ctx context.Context, questionID, format string, loc *time.Location) (export.File, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		return export.File{}, domain.NewValidationError("format", "must be one of: csv xlsx")
	}

	q, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return export.File{}, err
	}
	rows, err := s.responses.ListResponsesByQuestion(ctx, questionID)
	if err != nil {
		return export.File{}, fmt.Errorf("list responses: %w", err)
	}
	rows = lo.Filter(rows, func(r domain.Response, _ int) bool { return r.Submitted() })
	sort.SliceStable(rows, func(i, j int) bool {
		return submittedAt(rows[i]).Before(submittedAt(rows[j]))
	})

	file := export.File{Name: export.FileName(q, format, s.now().In(locOrUTC(loc)))}
	switch format {
	case export.FormatXLSX:
		file.ContentType = export.ContentTypeXLSX
		file.Data, err = export.XLSX(q, rows, loc)
	default:
		var buf bytes.Buffer
		file.ContentType = export.ContentTypeCSV
		err = export.CSV(&buf, q, rows, loc)
		file.Data = buf.Bytes()
	}
	if err != nil {
		return export.File{}, fmt.Errorf("export responses: %w", err)
	}
	return file, nil
}

// WordCloud analyzes the stored text answers of a question without a live view.
func (s *Service) WordCloud(ctx context.Context, questionID string) (wordcloud.Cloud, error) {
	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return wordcloud.Cloud{}, err
	}
	rows, err := s.responses.ListResponsesByQuestion(ctx, questionID)
	if err != nil {
		return wordcloud.Cloud{}, fmt.Errorf("list responses: %w", err)
	}
	store := responses.NewStore()
	for _, r := range rows {
		store.ApplyInsert(r)
	}
	return wordcloud.Build(toEntries(store.TextEntries()), q.IsAnonymous), nil
}

func submittedAt(r domain.Response) time.Time {
	if r.SubmittedAt == nil {
		return time.Time{}
	}
	return *r.SubmittedAt
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
