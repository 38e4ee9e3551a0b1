package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
)

// APIHandler serves the REST endpoints.
type APIHandler struct {
	service *app.Service
	logger  *slog.Logger
	loc     *time.Location
}

func NewAPIHandler(service *app.Service, logger *slog.Logger, loc *time.Location) *APIHandler {
	return &APIHandler{service: service, logger: logger, loc: loc}
}

func (h *APIHandler) CreateQuestion(c *gin.Context) {
	var req app.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "invalid JSON body"))
		return
	}
	q, err := h.service.CreateQuestion(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *APIHandler) ListQuestions(c *gin.Context) {
	var query app.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeError(c, h.logger, domain.NewValidationError("query", err.Error()))
		return
	}
	page, err := h.service.ListQuestions(c.Request.Context(), c.Param("teacherId"), query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *APIHandler) GetQuestion(c *gin.Context) {
	q, err := h.service.GetQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *APIHandler) CloseQuestion(c *gin.Context) {
	q, err := h.service.CloseQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *APIHandler) ReopenQuestion(c *gin.Context) {
	q, err := h.service.ReopenQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *APIHandler) DeleteQuestion(c *gin.Context) {
	if err := h.service.DeleteQuestion(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteQuestions removes the questions selected on the teacher's dashboard.
func (h *APIHandler) DeleteQuestions(c *gin.Context) {
	var req app.DeleteQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "invalid JSON body"))
		return
	}
	if err := h.service.DeleteQuestions(c.Request.Context(), req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) ListResponses(c *gin.Context) {
	rs, err := h.service.ListResponses(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if rs == nil {
		rs = []domain.Response{}
	}
	c.JSON(http.StatusOK, rs)
}

func (h *APIHandler) BeginResponse(c *gin.Context) {
	var req app.BeginRequest
	// anonymous questions accept an empty body
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, h.logger, domain.NewValidationError("body", "invalid JSON body"))
			return
		}
	}
	r, err := h.service.BeginResponse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *APIHandler) SubmitResponse(c *gin.Context) {
	var req app.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "invalid JSON body"))
		return
	}
	r, err := h.service.SubmitResponse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *APIHandler) DeleteResponse(c *gin.Context) {
	if err := h.service.DeleteResponse(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) Export(c *gin.Context) {
	file, err := h.service.ExportResponses(c.Request.Context(), c.Param("id"), c.Query("format"), h.loc)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(file.Name)))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func (h *APIHandler) WordCloud(c *gin.Context) {
	cloud, err := h.service.WordCloud(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cloud)
}
