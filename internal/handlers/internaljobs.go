package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

// JobExecutor is the worker seam the internal dispatch endpoint hands
// jobs to.
type JobExecutor interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

type InternalJobsHandler struct {
	log      *logger.Logger
	executor JobExecutor
}

func NewInternalJobsHandler(baseLog *logger.Logger, executor JobExecutor) *InternalJobsHandler {
	return &InternalJobsHandler{
		log:      baseLog.With("handler", "InternalJobsHandler"),
		executor: executor,
	}
}

type executeJobRequest struct {
	JobID string `json:"job_id"`
}

// POST /internal/jobs/execute
//
// Acknowledges with 202 before the job runs; the dispatching request
// must not block on generation. Job state after this point lives in the
// store and flows out through the event stream.
func (h *InternalJobsHandler) ExecuteJob(c *gin.Context) {
	var req executeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error("Job execution panicked", "job_id", jobID, "panic", rec)
			}
		}()
		if err := h.executor.Execute(context.Background(), jobID); err != nil {
			h.log.Error("Job execution failed", "job_id", jobID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}
