package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/skillforge/skillforge-backend/internal/domain"
	"github.com/skillforge/skillforge-backend/internal/pkg/dbctx"
	"github.com/skillforge/skillforge-backend/internal/services"
)

type GenerationHandler struct {
	generation services.GenerationService
}

func NewGenerationHandler(generation services.GenerationService) *GenerationHandler {
	return &GenerationHandler{generation: generation}
}

type submitJobRequest struct {
	Kind    string                      `json:"kind"`
	Payload *types.GenerationJobPayload `json:"payload"`
}

// POST /api/generation-jobs
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	job, err := h.generation.Submit(dbctx.New(c.Request.Context()), req.Kind, req.Payload)
	if err != nil {
		RespondServiceError(c, "submit_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/generation-jobs/:id
func (h *GenerationHandler) GetByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.generation.GetForRequestUser(dbctx.New(c.Request.Context()), jobID)
	if err != nil {
		RespondServiceError(c, "job_not_found", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/generation-jobs/latest?kind=structure
func (h *GenerationHandler) GetLatest(c *gin.Context) {
	job, err := h.generation.GetLatestForRequestUser(dbctx.New(c.Request.Context()), c.Query("kind"))
	if err != nil {
		RespondServiceError(c, "job_not_found", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// POST /api/generation-jobs/:id/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.generation.CancelForRequestUser(dbctx.New(c.Request.Context()), jobID)
	if err != nil {
		RespondServiceError(c, "cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
