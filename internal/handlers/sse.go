package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
	"github.com/skillforge/skillforge-backend/internal/realtime"
	"github.com/skillforge/skillforge-backend/internal/requestdata"
)

type SSEHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewSSEHandler(baseLog *logger.Logger, hub *realtime.SSEHub) *SSEHandler {
	return &SSEHandler{
		log: baseLog.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /sse/stream
//
// Every job event for the authenticated user flows over this stream;
// the channel is the user id, so a client sees all of its jobs without
// subscribing per job.
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	if userID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, userID.String())

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
