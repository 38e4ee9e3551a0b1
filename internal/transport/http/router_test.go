package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-response-service/internal/app"
	"live-response-service/internal/feed"
	"live-response-service/internal/infra/memory"
	"live-response-service/internal/logging"
	"live-response-service/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	changes := feed.NewInMemory("responses", logging.Discard())
	t.Cleanup(func() { _ = changes.Close() })
	m := metrics.New()
	service := app.NewService(app.Dependencies{
		Questions: memory.NewQuestionRepository(),
		Responses: memory.NewResponseRepository(),
		Publisher: changes,
		Changes:   changes,
		Views:     memory.NewViewRegistry(),
		Metrics:   m,
		Logger:    logging.Discard(),
	})
	return NewRouter(RouterConfig{
		Service:  service,
		Metrics:  m,
		Logger:   logging.Discard(),
		Location: time.UTC,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type questionBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type responseBody struct {
	ID           string `json:"id"`
	IsInProgress bool   `json:"isInProgress"`
}

func TestQuestionAndResponseFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/questions", map[string]any{
		"teacherId":   "kim",
		"type":        "poll",
		"content":     "Pick one",
		"pollOptions": []string{"a", "b"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[questionBody](t, rec)
	assert.Equal(t, "active", q.Status)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/questions/"+q.ID+"/responses", map[string]string{
		"studentNumber": "3",
		"nickname":      "Lee",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[responseBody](t, rec)
	assert.True(t, resp.IsInProgress)

	rec = doJSON(t, r, http.MethodPut, "/api/v1/responses/"+resp.ID, map[string]any{"pollAnswer": []string{"b"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[responseBody](t, rec).IsInProgress)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/questions/"+q.ID+"/responses", map[string]string{
		"studentNumber": "3",
		"nickname":      "Lee",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/teachers/kim/questions?status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		TotalItems int `json:"totalItems"`
		Items      []struct {
			ResponseCount int `json:"responseCount"`
		} `json:"items"`
	}](t, rec)
	require.Equal(t, 1, page.TotalItems)
	assert.Equal(t, 1, page.Items[0].ResponseCount)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/questions/"+q.ID+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename*=UTF-8''")
	assert.Contains(t, rec.Body.String(), "Lee")

	rec = doJSON(t, r, http.MethodPost, "/api/v1/questions/"+q.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", decode[questionBody](t, rec).Status)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/questions/"+q.ID+"/responses", map[string]string{
		"studentNumber": "4",
		"nickname":      "Park",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/responses/"+resp.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/questions/"+q.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/v1/questions/"+q.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/questions/"+q.ID+"/reopen", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSelectedQuestions(t *testing.T) {
	r := newTestRouter(t)

	var ids []string
	for _, content := range []string{"first", "second", "third"} {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/questions", map[string]any{
			"teacherId": "kim",
			"type":      "text",
			"content":   content,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[questionBody](t, rec).ID)
	}
	rec := doJSON(t, r, http.MethodPost, "/api/v1/questions", map[string]any{
		"teacherId": "lee",
		"type":      "text",
		"content":   "not yours",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	foreign := decode[questionBody](t, rec).ID

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/questions", map[string]any{
		"teacherId": "kim",
		"ids":       []string{ids[0], foreign},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/v1/questions/"+ids[0], nil)
	assert.Equal(t, http.StatusOK, rec.Code, "a rejected selection deletes nothing")

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/questions", map[string]any{"teacherId": "kim", "ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/questions", map[string]any{
		"teacherId": "kim",
		"ids":       []string{ids[0], ids[2]},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/teachers/kim/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		TotalItems int            `json:"totalItems"`
		Items      []questionBody `json:"items"`
	}](t, rec)
	require.Equal(t, 1, page.TotalItems)
	assert.Equal(t, ids[1], page.Items[0].ID)

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/questions", map[string]any{"teacherId": "kim", "ids": []string{ids[0]}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidationErrorsListFields(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/questions", map[string]any{
		"teacherId": "kim",
		"type":      "essay",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	fields := make([]string, 0, len(body.Fields))
	for _, f := range body.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"type", "content"}, fields)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/teachers/kim/questions?sort=popularity", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnonymousBeginAcceptsEmptyBody(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/questions", map[string]any{
		"teacherId":   "kim",
		"type":        "text",
		"content":     "Anything?",
		"isAnonymous": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	q := decode[questionBody](t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/"+q.ID+"/responses", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"nickname":"anonymous"`)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "live_response_views")
}

func TestUnknownQuestionIs404(t *testing.T) {
	r := newTestRouter(t)
	for _, path := range []string{
		"/api/v1/questions/nope",
		"/api/v1/questions/nope/wordcloud",
		"/api/v1/questions/nope/export",
	} {
		rec := doJSON(t, r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}
