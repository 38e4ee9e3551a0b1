package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuestionNotFound is returned when a question id is unknown or soft-deleted.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrResponseNotFound is returned when a response id is unknown.
	ErrResponseNotFound = errors.New("response not found")
	// ErrQuestionClosed rejects new responses to a question that is not active.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrQuestionDeleted rejects status changes on a deleted question.
	ErrQuestionDeleted = errors.New("question is deleted")
	// ErrAlreadySubmitted is returned when a respondent tries to answer twice.
	ErrAlreadySubmitted = errors.New("response already submitted")
	// ErrInvalidSortField rejects unknown sort keys.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// ValidationError describes a rejected field on an incoming request.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors collects every failed field of one request.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	fields := make([]string, 0, len(ve))
	for _, e := range ve {
		fields = append(fields, e.Field)
	}
	return fmt.Sprintf("validation failed: %d field errors (%s)", len(ve), strings.Join(fields, ", "))
}

// IsValidation reports whether err is a ValidationError or ValidationErrors.
func IsValidation(err error) bool {
	var single *ValidationError
	var many ValidationErrors
	return errors.As(err, &single) || errors.As(err, &many)
}
