package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
	"live-response-service/internal/responses"
)

// WSHandler streams a live dashboard of one question to a teacher.
type WSHandler struct {
	service  *app.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sortPayload struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type deletePayload struct {
	ResponseID string `json:"responseId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func parseOrder(field, direction string) (app.Order, error) {
	f, err := responses.ParseSortField(field)
	if err != nil {
		return app.Order{}, err
	}
	return app.Order{Field: f, Direction: responses.ParseDirection(direction)}, nil
}

// ServeLive upgrades the request and pushes dashboard snapshots until the
// client disconnects or the view stops.
func (h *WSHandler) ServeLive(c *gin.Context) {
	questionID := c.Param("id")
	order, err := parseOrder(c.Query("sort"), c.Query("dir"))
	if err != nil {
		writeError(c, h.logger, domain.NewValidationError("sort", err.Error()))
		return
	}

	view, err := h.service.Watch(c.Request.Context(), questionID, order)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer view.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "question_id", questionID, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := view.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// only the writer goroutine touches conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "question_id", questionID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// view stopped; unblock the reader
					_ = conn.Close()
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "dashboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.handleInbound(c, view, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleInbound runs one client command and returns the direct reply, if any.
func (h *WSHandler) handleInbound(c *gin.Context, view *app.View, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "sort":
		var payload sortPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage("invalid sort payload"), true
		}
		order, err := parseOrder(payload.Field, payload.Direction)
		if err != nil {
			return errorMessage(err.Error()), true
		}
		// the new snapshot arrives through the subscription
		view.SetOrder(order)
		return outboundMessage[any]{}, false
	case "roster":
		order := view.Dashboard().Order
		var payload sortPayload
		if len(inbound.Payload) > 0 && json.Unmarshal(inbound.Payload, &payload) == nil && payload.Field != "" {
			parsed, err := parseOrder(payload.Field, payload.Direction)
			if err != nil {
				return errorMessage(err.Error()), true
			}
			order = parsed
		}
		return outboundMessage[any]{Type: "roster", Payload: view.Roster(order)}, true
	case "wordcloud":
		return outboundMessage[any]{Type: "wordcloud", Payload: view.WordCloud()}, true
	case "deleteResponse":
		var payload deletePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ResponseID == "" {
			return errorMessage("invalid deleteResponse payload"), true
		}
		owned := lo.ContainsBy(view.Roster(app.DefaultOrder), func(r domain.Response) bool {
			return r.ID == payload.ResponseID
		})
		if !owned {
			return errorMessage(domain.ErrResponseNotFound.Error()), true
		}
		if err := h.service.DeleteResponse(c.Request.Context(), payload.ResponseID); err != nil {
			return errorMessage(err.Error()), true
		}
		return outboundMessage[any]{}, false
	default:
		return errorMessage("unsupported message type"), true
	}
}
