package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
	"github.com/skillforge/skillforge-backend/internal/requestdata"
	"github.com/skillforge/skillforge-backend/internal/services"
)

type ChatHandler struct {
	log        *logger.Logger
	escalation services.EscalationRelay
}

func NewChatHandler(baseLog *logger.Logger, escalation services.EscalationRelay) *ChatHandler {
	return &ChatHandler{
		log:        baseLog.With("handler", "ChatHandler"),
		escalation: escalation,
	}
}

type chatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// POST /api/chat/messages
//
// Escalation delivery runs in the background: the learner gets their
// acknowledgement immediately even when the support endpoint is slow or
// down.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		RespondError(c, http.StatusBadRequest, "empty_message", nil)
		return
	}

	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	escalated, keywords := services.DetectEscalation(req.Message)
	if escalated && h.escalation != nil {
		h.escalation.NotifyAsync(c.Request.Context(), services.EscalationPayload{
			SessionID:  sessionID,
			ActorID:    rd.UserID,
			Trigger:    "keyword",
			Keywords:   keywords,
			Message:    req.Message,
			ActorName:  rd.UserName,
			ActorEmail: rd.UserEmail,
		})
	}

	RespondOK(c, gin.H{
		"session_id": sessionID,
		"escalated":  escalated,
	})
}
