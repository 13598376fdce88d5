package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parleychat/parley/internal/common"
	"github.com/parleychat/parley/internal/gateway"
)

// Handler serves the chat backend contract with demo-responder replies, so
// the client (and its tests) can exercise every transport against a real
// HTTP surface.
type Handler struct {
	store      *Store
	single     *gateway.DemoResponder
	multi      *gateway.DemoResponder
	replyDelay time.Duration
}

func newHandler(st *Store, replyDelay time.Duration) *Handler {
	personas := gateway.NewPersonas()
	return &Handler{
		store:      st,
		single:     gateway.NewDemoResponder(gateway.WithPersonas(personas), gateway.WithoutLatency(), gateway.WithSingleReplies()),
		multi:      gateway.NewDemoResponder(gateway.WithPersonas(personas), gateway.WithoutLatency()),
		replyDelay: replyDelay,
	}
}

func data(c *gin.Context, status int, payload any) {
	c.JSON(status, gin.H{"data": payload})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

type createChatReq struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title"`
}

func (h *Handler) createChat(c *gin.Context) {
	var req createChatReq
	_ = c.ShouldBindJSON(&req) // allow empty body

	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = gateway.DefaultAgent
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Chat with " + agentID
	}

	id, err := common.NewULID()
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	chat := &Chat{
		ID:        id,
		UserID:    currentUser(c).ID,
		AgentID:   agentID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateChat(c.Request.Context(), chat); err != nil {
		fail(c, http.StatusInternalServerError, "failed to create chat")
		return
	}
	data(c, http.StatusCreated, chat)
}

type sendMessageReq struct {
	Content string `json:"content" binding:"required"`
	AgentID string `json:"agentId"`
}

// ownedChat loads the chat in the path and checks it belongs to the caller.
// Foreign chats 404 to hide existence.
func (h *Handler) ownedChat(c *gin.Context) (*Chat, bool) {
	chat, err := h.store.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, "chat not found")
		} else {
			fail(c, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	if chat.UserID != currentUser(c).ID {
		fail(c, http.StatusNotFound, "chat not found")
		return nil, false
	}
	return chat, true
}

// acceptTurn validates a send request and persists the user's message before
// any reply work happens.
func (h *Handler) acceptTurn(c *gin.Context) (*Chat, sendMessageReq, bool) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "content is required")
		return nil, req, false
	}

	chat, ok := h.ownedChat(c)
	if !ok {
		return nil, req, false
	}
	if req.AgentID == "" {
		req.AgentID = chat.AgentID
	}

	// MustULID's monotonic entropy keeps same-millisecond messages in
	// insert order; listings sort by id.
	user := &Message{ID: common.MustULID(), ChatID: chat.ID, Role: "user", Content: req.Content}
	if err := h.store.AppendMessage(c.Request.Context(), user); err != nil {
		fail(c, http.StatusInternalServerError, "failed to store message")
		return nil, req, false
	}
	return chat, req, true
}

func (h *Handler) persistReply(ctx context.Context, chatID, content string) (*Message, error) {
	m := &Message{ID: common.MustULID(), ChatID: chatID, Role: "assistant", Content: content}
	if err := h.store.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (h *Handler) sendMessage(c *gin.Context) {
	chat, req, ok := h.acceptTurn(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.wait(ctx); err != nil {
		return
	}
	batch, err := h.single.Respond(ctx, chat.ID, req.AgentID, req.Content)
	if err != nil {
		return
	}

	reply, err := h.persistReply(ctx, chat.ID, batch.Fragments[0])
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to store reply")
		return
	}
	data(c, http.StatusOK, reply)
}

func (h *Handler) sendMessageMulti(c *gin.Context) {
	chat, req, ok := h.acceptTurn(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.wait(ctx); err != nil {
		return
	}
	batch, err := h.multi.Respond(ctx, chat.ID, req.AgentID, req.Content)
	if err != nil {
		return
	}

	replies := make([]*Message, 0, len(batch.Fragments))
	for _, frag := range batch.Fragments {
		m, err := h.persistReply(ctx, chat.ID, frag)
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to store reply")
			return
		}
		replies = append(replies, m)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"isMultiMessage": true,
			"totalMessages":  len(replies),
			"messages":       replies,
		},
	})
}

func (h *Handler) sendMessageStream(c *gin.Context) {
	chat, req, ok := h.acceptTurn(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		fmt.Fprintf(c.Writer, `data: {"type":"error","reason":"streaming unsupported"}`+"\n\n")
		return
	}

	write := func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	write(gin.H{"type": "connected"})

	ctx := c.Request.Context()
	batch, err := h.multi.Respond(ctx, chat.ID, req.AgentID, req.Content)
	if err != nil {
		return
	}

	for _, frag := range batch.Fragments {
		if err := h.wait(ctx); err != nil {
			return
		}
		m, err := h.persistReply(ctx, chat.ID, frag)
		if err != nil {
			write(gin.H{"type": "error", "reason": "failed to store reply"})
			return
		}
		write(gin.H{"type": "message", "payload": m.Content, "messageId": m.ID})
	}
	write(gin.H{"type": "complete"})
}

func (h *Handler) listChats(c *gin.Context) {
	chats, err := h.store.ListChats(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []Chat{}
	}
	data(c, http.StatusOK, chats)
}

func (h *Handler) getChat(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	data(c, http.StatusOK, chat)
}

func (h *Handler) listMessages(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	msgs, total, err := h.store.ListMessages(c.Request.Context(), chat.ID, page, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	data(c, http.StatusOK, gin.H{
		"messages": msgs,
		"page":     page,
		"limit":    limit,
		"total":    total,
	})
}

func (h *Handler) pollMessages(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}

	msgs, err := h.store.MessagesAfter(c.Request.Context(), chat.ID, c.Query("lastMessageId"))
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to poll messages")
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	data(c, http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) wait(ctx context.Context) error {
	if h.replyDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(h.replyDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
