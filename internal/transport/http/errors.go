package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
)

type errorBody struct {
	Error  string                   `json:"error"`
	Fields []domain.ValidationError `json:"fields,omitempty"`
}

// statusFor maps a use case error to an HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case app.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrQuestionClosed),
		errors.Is(err, domain.ErrQuestionDeleted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var single *domain.ValidationError
	var many domain.ValidationErrors
	switch {
	case errors.As(err, &many):
		body.Fields = many
	case errors.As(err, &single):
		body.Fields = []domain.ValidationError{*single}
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		body.Error = "internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}
