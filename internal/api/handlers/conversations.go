package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nemark/chat-server/internal/api/middleware"
	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/wire"
	"github.com/nemark/chat-server/pkg/types"
)

const defaultInboxLimit = 50

// ConversationsHandler serves the staff dashboard: inbox listing, history,
// sending over HTTP and read receipts. Sends fan out through the same router
// as realtime sends so widget connections see dashboard replies live.
type ConversationsHandler struct {
	store  *store.Store
	chat   *chat.Service
	router *fanout.Router
}

func NewConversationsHandler(st *store.Store, chatSvc *chat.Service, router *fanout.Router) *ConversationsHandler {
	return &ConversationsHandler{store: st, chat: chatSvc, router: router}
}

type conversationListEntry struct {
	ConversationID     string `json:"conversationId"`
	VisitorID          string `json:"visitorId"`
	VisitorName        string `json:"visitorName,omitempty"`
	SiteID             string `json:"siteId"`
	WidgetName         string `json:"widgetName"`
	LastMessagePreview string `json:"lastMessagePreview"`
	LastMessageSeq     int64  `json:"lastMessageSeq"`
	LastMessageAt      *int64 `json:"lastMessageAt"`
	MessageCount       int64  `json:"messageCount"`
	UnreadCount        int64  `json:"unreadCount"`
	CreatedAt          int64  `json:"createdAt"`
}

// ListConversations handles GET /v1/conversations.
func (h *ConversationsHandler) ListConversations(c *gin.Context) {
	staffID, ok := middleware.GetStaffID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
		return
	}

	account, err := h.store.GetStaffByID(c.Request.Context(), staffID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := defaultInboxLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.store.ListConversationsForStaff(
		c.Request.Context(), account.StaffKey, chat.StaffMemberKey(staffID), limit)
	if err != nil {
		logger.Errorf("inbox list failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return
	}

	entries := make([]conversationListEntry, 0, len(items))
	for _, item := range items {
		entry := conversationListEntry{
			ConversationID:     item.ConversationID,
			VisitorID:          item.VisitorID,
			VisitorName:        item.VisitorName,
			SiteID:             item.SiteKey,
			WidgetName:         item.WidgetName,
			LastMessagePreview: item.LastMessagePreview,
			LastMessageSeq:     item.LastMessageSeq,
			MessageCount:       item.MessageCount,
			UnreadCount:        item.UnreadCount,
			CreatedAt:          item.CreatedAt.UnixMilli(),
		}
		if item.LastMessageAt != nil {
			at := item.LastMessageAt.UnixMilli()
			entry.LastMessageAt = &at
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": entries})
}

// GetMessages handles GET /v1/conversations/:id/messages.
func (h *ConversationsHandler) GetMessages(c *gin.Context) {
	conv, _, ok := h.resolveConversation(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	var cursor *int64
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid cursor"})
			return
		}
		cursor = &n
	}

	page, err := h.chat.History(c.Request.Context(), conv.ConversationKey, limit, cursor)
	if err != nil {
		logger.Errorf("history failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return
	}

	items := make([]wire.Message, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, wire.Message{
			ID:             m.ID,
			ConversationID: conv.ConversationID,
			Seq:            m.Seq,
			SenderType:     string(m.SenderType),
			SenderID:       m.SenderID,
			SenderName:     m.SenderName,
			Text:           m.Content,
			ClientMsgID:    m.ClientMsgID,
			CreatedAt:      wire.Millis(m.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, wire.HistoryResponse{Items: items, NextCursor: page.NextCursor})
}

type postMessageRequest struct {
	Text        string  `json:"text" binding:"required"`
	ClientMsgID *string `json:"clientMsgId"`
}

// PostMessage handles POST /v1/conversations/:id/messages.
func (h *ConversationsHandler) PostMessage(c *gin.Context) {
	conv, siteKey, ok := h.resolveConversation(c)
	if !ok {
		return
	}
	staffID, _ := middleware.GetStaffID(c)

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "text is required"})
		return
	}

	account, err := h.store.GetStaffByID(c.Request.Context(), staffID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
		return
	}

	res, err := h.chat.SendMessage(c.Request.Context(), chat.SendMessageParams{
		ConversationKey: conv.ConversationKey,
		ConversationID:  conv.ConversationID,
		SenderType:      store.SenderStaff,
		SenderID:        staffID,
		SenderName:      account.Name,
		Content:         req.Text,
		ClientMsgID:     req.ClientMsgID,
	})
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
			return
		}
		logger.Errorf("staff send failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return
	}

	record := wire.Message{
		ID:             res.Message.ID,
		ConversationID: conv.ConversationID,
		Seq:            res.Message.Seq,
		SenderType:     string(res.Message.SenderType),
		SenderID:       res.Message.SenderID,
		SenderName:     res.Message.SenderName,
		Text:           res.Message.Content,
		ClientMsgID:    res.Message.ClientMsgID,
		IsDuplicate:    res.IsDuplicate,
		CreatedAt:      wire.Millis(res.Message.CreatedAt),
	}

	if !res.IsDuplicate {
		broadcast := record
		broadcast.IsDuplicate = false
		h.router.Publish(fanout.ConversationTopic(siteKey, conv.VisitorID), wire.EventMessage, broadcast, "")
		h.router.Publish(fanout.StaffTopic(siteKey), wire.EventMessage, broadcast, "")

		seenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.chat.MarkSeen(seenCtx, conv.ConversationKey, chat.StaffMemberKey(staffID), res.Message.Seq); err != nil {
			logger.Warnf("staff seen pointer update failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": record})
}

type postSeenRequest struct {
	LastSeenSeq int64 `json:"lastSeenSeq"`
}

// PostSeen handles POST /v1/conversations/:id/seen.
func (h *ConversationsHandler) PostSeen(c *gin.Context) {
	conv, siteKey, ok := h.resolveConversation(c)
	if !ok {
		return
	}
	staffID, _ := middleware.GetStaffID(c)

	var req postSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LastSeenSeq < 0 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "lastSeenSeq is required"})
		return
	}

	if err := h.chat.MarkSeen(c.Request.Context(), conv.ConversationKey, chat.StaffMemberKey(staffID), req.LastSeenSeq); err != nil {
		logger.Errorf("seen update failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return
	}

	h.router.Publish(fanout.ConversationTopic(siteKey, conv.VisitorID), wire.EventSeen, wire.Seen{
		ConversationID: conv.ConversationID,
		SenderType:     string(store.SenderStaff),
		LastSeenSeq:    req.LastSeenSeq,
	}, "")

	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}

// resolveConversation loads the :id conversation and verifies the caller's
// workspace grants access to its site. Writes the error response itself.
func (h *ConversationsHandler) resolveConversation(c *gin.Context) (store.Conversation, string, bool) {
	staffID, ok := middleware.GetStaffID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
		return store.Conversation{}, "", false
	}

	conv, err := h.store.GetConversationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "conversation not found"})
			return store.Conversation{}, "", false
		}
		logger.Errorf("conversation lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return store.Conversation{}, "", false
	}

	siteKey, err := h.store.ConversationSiteKey(c.Request.Context(), conv.ConversationKey)
	if err != nil {
		logger.Errorf("site key lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return store.Conversation{}, "", false
	}

	siteKeys, err := h.store.ListAccessibleSiteKeys(c.Request.Context(), staffID)
	if err != nil {
		logger.Errorf("site access lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "temporary failure"})
		return store.Conversation{}, "", false
	}
	for _, key := range siteKeys {
		if key == siteKey {
			return conv, siteKey, true
		}
	}

	c.JSON(http.StatusForbidden, types.ErrorResponse{Error: "no access to conversation"})
	return store.Conversation{}, "", false
}
