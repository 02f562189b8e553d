package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/ctxkeys"
	"github.com/Ahabibm4/chatbot/pkg/logging"
	"github.com/Ahabibm4/chatbot/pkg/middleware"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeSSE    = "text/event-stream"
)

var errorFrame = []byte(`{"type":"error"}`)

// TurnRunner runs chat turns.
type TurnRunner interface {
	Stream(ctx context.Context, req model.ChatRequest) (<-chan model.Event, error)
	Complete(ctx context.Context, req model.ChatRequest) (model.ChatResponse, error)
}

// HistoryReader reads a conversation transcript.
type HistoryReader interface {
	History(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error)
}

type Handler struct {
	Turns   TurnRunner
	History HistoryReader
	Logger  logging.Logger

	locks *conversationLocks
}

func NewHandler(turns TurnRunner, history HistoryReader, logger logging.Logger) *Handler {
	return &Handler{Turns: turns, History: history, Logger: logger, locks: newConversationLocks()}
}

func RegisterRoutes(router gin.IRoutes, handler *Handler) {
	router.POST("/chat", handler.HandleStream)
	router.POST("/chat/sse", handler.HandleSSE)
	router.POST("/chat/sync", handler.HandleSync)
	router.GET("/chat/:conversationId/messages", handler.HandleHistory)
}

// HandleStream answers with one JSON event per line.
func (h *Handler) HandleStream(c *gin.Context) {
	h.stream(c, contentTypeNDJSON, func(w http.ResponseWriter, frame []byte) error {
		_, err := fmt.Fprintf(w, "%s\n", frame)
		return err
	})
}

// HandleSSE answers with the same events as server-sent events.
func (h *Handler) HandleSSE(c *gin.Context) {
	h.stream(c, contentTypeSSE, func(w http.ResponseWriter, frame []byte) error {
		_, err := fmt.Fprintf(w, "data: %s\n\n", frame)
		return err
	})
}

func (h *Handler) HandleSync(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	unlock := h.locks.Lock(lockKey(req))
	defer unlock()

	resp, err := h.Turns.Complete(c.Request.Context(), req)
	if err != nil {
		h.abortTurn(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleHistory(c *gin.Context) {
	tenantID := c.GetString(string(ctxkeys.KeyTenantID))
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "tenant_id missing"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return
	}
	messages, err := h.History.History(c.Request.Context(), tenantID, conversationID)
	if err != nil {
		middleware.GetContextLogger(c, h.Logger).WithError(err).WithField("conversation_id", conversationID).Error("Failed to load conversation history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conversationID, "messages": messages})
}

func (h *Handler) stream(c *gin.Context, contentType string, write func(http.ResponseWriter, []byte) error) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}

	unlock := h.locks.Lock(lockKey(req))
	defer unlock()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.Turns.Stream(ctx, req)
	if err != nil {
		h.abortTurn(c, err)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Conversation-ID", req.ConversationID)
	c.Status(http.StatusOK)

	for event := range events {
		if err := write(c.Writer, h.encode(event)); err != nil {
			h.Logger.WithError(err).WithField("conversation_id", req.ConversationID).Debug("Chat client disconnected")
			return
		}
		flusher.Flush()
	}
}

// bindRequest decodes the submission and applies the authenticated
// identity. It writes the error response itself.
func (h *Handler) bindRequest(c *gin.Context) (model.ChatRequest, bool) {
	var sub model.ChatSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return model.ChatRequest{}, false
	}
	req, err := sub.ToRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.ChatRequest{}, false
	}
	req = req.WithIdentity(
		c.GetString(string(ctxkeys.KeyTenantID)),
		c.GetString(string(ctxkeys.KeyUserID)),
		c.GetStringSlice(string(ctxkeys.KeyRoles)),
	)
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.ChatRequest{}, false
	}
	return req, true
}

func (h *Handler) abortTurn(c *gin.Context, err error) {
	if errors.Is(err, model.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	middleware.GetContextLogger(c, h.Logger).WithError(err).Error("Chat turn failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "chat turn failed"})
}

func (h *Handler) encode(event model.Event) []byte {
	frame, err := json.Marshal(event)
	if err != nil {
		h.Logger.WithError(err).WithField("type", event.Type).Warn("Failed to encode chat event")
		return errorFrame
	}
	return frame
}

func lockKey(req model.ChatRequest) string {
	return req.TenantID + "/" + req.ConversationID
}
