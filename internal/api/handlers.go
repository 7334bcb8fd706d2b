// Package api exposes the chat service over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courier/internal/chat"
	"courier/internal/status"
	"courier/internal/store"
)

// Handlers holds the HTTP handlers for the chat API.
type Handlers struct {
	svc     *chat.Service
	machine *status.Machine
	logger  *zap.Logger
}

// NewHandlers creates the API handler set.
func NewHandlers(svc *chat.Service, m *status.Machine, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, machine: m, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (h *Handlers) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.logger))

	r.GET("/healthz", h.health)

	v := r.Group("/api")
	v.POST("/messages", h.sendMessage)
	v.GET("/conversations/:id", h.getConversation)
	v.GET("/conversations/user/:user_id", h.listUserConversations)
	v.GET("/conversations/:id/messages", h.listMessages)
	v.GET("/conversations/:id/messages/before", h.listMessagesBefore)

	return r
}

type sendMessageRequest struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

type messageResponse struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationResponse struct {
	ID                 int64      `json:"id"`
	User1ID            int64      `json:"user1_id"`
	User2ID            int64      `json:"user2_id"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	LastMessageContent *string    `json:"last_message_content"`
}

type pageResponse[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Data  []T `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) health(c *gin.Context) {
	state := h.machine.Current()
	code := http.StatusOK
	if state != status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": string(state)})
}

func (h *Handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), req.SenderID, req.ReceiverID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageFromStore(msg))
}

func (h *Handlers) getConversation(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}

	conv, found, err := h.svc.GetConversation(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorResponse{Error: "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conversationFromChat(conv))
}

func (h *Handlers) listUserConversations(c *gin.Context) {
	userID, ok := pathInt64(c, "user_id")
	if !ok {
		return
	}
	page, limit := pageParams(c)

	res, err := h.svc.ListUserConversations(c.Request.Context(), userID, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := pageResponse[conversationResponse]{Total: res.Total, Page: res.Page, Limit: res.Limit, Data: []conversationResponse{}}
	for _, conv := range res.Data {
		out.Data = append(out.Data, conversationFromChat(conv))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) listMessages(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	page, limit := pageParams(c)

	res, err := h.svc.ListConversationMessages(c.Request.Context(), id, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messagePage(res))
}

func (h *Handlers) listMessagesBefore(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	before, err := time.Parse(time.RFC3339Nano, c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "before must be an RFC 3339 timestamp"})
		return
	}
	page, limit := pageParams(c)

	res, err := h.svc.ListMessagesBefore(c.Request.Context(), id, before, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messagePage(res))
}

// writeError maps service errors to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalid):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "conversation not found"})
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrAllocationConflict):
		h.logger.Warn("storage unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable, retry later"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: name + " must be a positive integer"})
		return 0, false
	}
	return v, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func messageFromStore(m store.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		CreatedAt:      m.At,
	}
}

func conversationFromChat(conv chat.Conversation) conversationResponse {
	out := conversationResponse{
		ID:      conv.ID,
		User1ID: conv.User1ID,
		User2ID: conv.User2ID,
	}
	if !conv.LastMessageAt.IsZero() {
		at := conv.LastMessageAt
		out.LastMessageAt = &at
	}
	if conv.LastMessageContent != "" {
		content := conv.LastMessageContent
		out.LastMessageContent = &content
	}
	return out
}

func messagePage(res chat.Page[store.Message]) pageResponse[messageResponse] {
	out := pageResponse[messageResponse]{Total: res.Total, Page: res.Page, Limit: res.Limit, Data: []messageResponse{}}
	for _, m := range res.Data {
		out.Data = append(out.Data, messageFromStore(m))
	}
	return out
}
