package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"live-response-service/internal/app"
	"live-response-service/internal/metrics"
)

// RouterConfig wires the HTTP surface. Metrics and Location are optional.
type RouterConfig struct {
	Service  *app.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Location *time.Location
}

// NewRouter builds the gin engine serving the REST API and the live websocket.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := NewAPIHandler(cfg.Service, cfg.Logger, cfg.Location)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/questions", api.CreateQuestion)
		v1.GET("/teachers/:teacherId/questions", api.ListQuestions)
		v1.GET("/questions/:id", api.GetQuestion)
		v1.POST("/questions/:id/close", api.CloseQuestion)
		v1.POST("/questions/:id/reopen", api.ReopenQuestion)
		v1.DELETE("/questions", api.DeleteQuestions)
		v1.DELETE("/questions/:id", api.DeleteQuestion)
		v1.GET("/questions/:id/responses", api.ListResponses)
		v1.POST("/questions/:id/responses", api.BeginResponse)
		v1.GET("/questions/:id/export", api.Export)
		v1.GET("/questions/:id/wordcloud", api.WordCloud)
		v1.PUT("/responses/:id", api.SubmitResponse)
		v1.DELETE("/responses/:id", api.DeleteResponse)
	}

	ws := NewWSHandler(cfg.Service, cfg.Logger)
	r.GET("/ws/questions/:id/live", ws.ServeLive)
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP())
	}
}
