package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"live-response-service/internal/domain"
)

// CreateQuestionRequest is the teacher's new question form.
type CreateQuestionRequest struct {
	TeacherID     string              `json:"teacherId" validate:"required,max=50"`
	TeacherName   string              `json:"teacherName" validate:"max=50"`
	Type          domain.QuestionType `json:"type" validate:"required,oneof=text poll"`
	Content       string              `json:"content" validate:"required,max=100"`
	PollOptions   []string            `json:"pollOptions" validate:"max=20,dive,max=100"`
	AllowMultiple bool                `json:"allowMultiple"`
	IsAnonymous   bool                `json:"isAnonymous"`
}

// BeginRequest identifies a student opening a question.
type BeginRequest struct {
	StudentNumber string `json:"studentNumber" validate:"max=20"`
	Nickname      string `json:"nickname" validate:"max=30"`
}

// SubmitRequest carries the answer. Which fields apply depends on the question type.
type SubmitRequest struct {
	TextAnswer  string   `json:"textAnswer" validate:"max=2000"`
	DrawingData string   `json:"drawingData"`
	PollAnswer  []string `json:"pollAnswer" validate:"max=20"`
}

// DeleteQuestionsRequest selects questions of one teacher for removal.
type DeleteQuestionsRequest struct {
	TeacherID string   `json:"teacherId" validate:"required,max=50"`
	IDs       []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the tag rules and converts failures to domain.ValidationErrors.
func (s *Service) validateStruct(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, domain.ValidationError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}
