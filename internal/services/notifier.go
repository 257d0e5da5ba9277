package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/skillforge/skillforge-backend/internal/domain"
	"github.com/skillforge/skillforge-backend/internal/realtime"
)

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.GenerationJob)
	JobProgress(userID uuid.UUID, job *types.GenerationJob, step string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.GenerationJob, step string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.GenerationJob)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.GenerationJob) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobCreated,
		Data:    map[string]any{"job": job},
	})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.GenerationJob, step string, progress int, message string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobProgress,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_kind": safeJobKind(job),
			"status":   safeJobStatus(job),
			"step":     step,
			"progress": progress,
			"message":  message,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.GenerationJob, step string, errorMessage string) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobFailed,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_kind": safeJobKind(job),
			"step":     step,
			"error":    errorMessage,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.GenerationJob) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: userID.String(),
		Event:   realtime.SSEEventJobDone,
		Data: map[string]any{
			"job_id":   safeJobID(job),
			"job_kind": safeJobKind(job),
			"job":      job,
		},
	})
}

func safeJobID(job *types.GenerationJob) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobKind(job *types.GenerationJob) string {
	if job == nil {
		return ""
	}
	return job.Kind
}

func safeJobStatus(job *types.GenerationJob) string {
	if job == nil {
		return ""
	}
	return job.Status
}
