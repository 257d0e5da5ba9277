package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/data/repos/jobs"
	types "github.com/skillforge/skillforge-backend/internal/domain"
	"github.com/skillforge/skillforge-backend/internal/pkg/dbctx"
	apperrors "github.com/skillforge/skillforge-backend/internal/pkg/errors"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
	"github.com/skillforge/skillforge-backend/internal/requestdata"
)

const minGoalLength = 10

// GenerationService owns the submission side of the job lifecycle:
// validation, the one-active-job-per-owner rule, the durable queued
// insert, and the handoff to the executor tier.
type GenerationService interface {
	Submit(dbc dbctx.Context, kind string, payload *types.GenerationJobPayload) (*types.GenerationJob, error)
	GetForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.GenerationJob, error)
	GetLatestForRequestUser(dbc dbctx.Context, kind string) (*types.GenerationJob, error)
	CancelForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.GenerationJob, error)
}

type generationService struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobs.GenerationJobRepo
	notify   JobNotifier
	dispatch JobDispatcher
}

func NewGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo jobs.GenerationJobRepo,
	notify JobNotifier,
	dispatch JobDispatcher,
) GenerationService {
	return &generationService{
		db:       db,
		log:      baseLog.With("service", "GenerationService"),
		repo:     repo,
		notify:   notify,
		dispatch: dispatch,
	}
}

func (s *generationService) Submit(dbc dbctx.Context, kind string, payload *types.GenerationJobPayload) (*types.GenerationJob, error) {
	ownerID := requestdata.UserID(dbc.Ctx)
	if ownerID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if !types.IsValidJobKind(kind) {
		return nil, fmt.Errorf("%w: unknown job kind %q", apperrors.ErrInvalidArgument, kind)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: missing payload", apperrors.ErrInvalidArgument)
	}
	if len(strings.TrimSpace(payload.Goal)) < minGoalLength {
		return nil, fmt.Errorf("%w: goal must be at least %d characters", apperrors.ErrInvalidArgument, minGoalLength)
	}
	if kind == types.JobKindContent {
		if payload.Structure == nil || len(payload.Structure.Chapters) == 0 {
			return nil, fmt.Errorf("%w: content generation requires an approved structure", apperrors.ErrInvalidArgument)
		}
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}

	// One active job per owner. Submissions race between the check and the
	// insert; the window is accepted because a duplicate only costs one
	// redundant generation, never corrupts job state.
	active, err := s.repo.ExistsActiveForOwner(repoCtx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check active jobs: %w", err)
	}
	if active {
		return nil, fmt.Errorf("%w: a generation job is already running", apperrors.ErrConflict)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now()
	job := &types.GenerationJob{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		Kind:        kind,
		Status:      types.JobStatusQueued,
		Progress:    0,
		Step:        "Queued",
		Payload:     datatypes.JSON(payloadJSON),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(repoCtx, []*types.GenerationJob{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// Notify immediately (request-time), before the executor picks it up.
	s.notify.JobCreated(ownerID, job)

	if err := s.dispatch.Dispatch(dbc.Ctx, job.ID); err != nil {
		s.failUndispatched(dbc, job, err)
		return job, fmt.Errorf("dispatch job: %w", err)
	}
	return job, nil
}

// failUndispatched flips a job the worker never acknowledged to failed.
// The write is guarded so a concurrently completed or cancelled row is
// left alone.
func (s *generationService) failUndispatched(dbc dbctx.Context, job *types.GenerationJob, dispatchErr error) {
	now := time.Now().UTC()
	flipped, err := s.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: dbc.Ctx}, job.ID, types.TerminalJobStatuses, map[string]interface{}{
		"status":       types.JobStatusFailed,
		"step":         "Dispatch",
		"error":        "The job could not be handed to a worker. Please try again.",
		"completed_at": now,
		"updated_at":   now,
	})
	if err != nil {
		s.log.Error("Failed to mark undispatched job as failed", "job_id", job.ID, "error", err)
		return
	}
	if !flipped {
		return
	}
	job.Status = types.JobStatusFailed
	job.Step = "Dispatch"
	job.Error = "The job could not be handed to a worker. Please try again."
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.log.Error("Job dispatch failed", "job_id", job.ID, "kind", job.Kind, "error", dispatchErr)
	s.notify.JobFailed(job.OwnerUserID, job, "Dispatch", job.Error)
}

func (s *generationService) GetForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.GenerationJob, error) {
	userID := requestdata.UserID(dbc.Ctx)
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing job id", apperrors.ErrInvalidArgument)
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	// Hide other owners' jobs instead of acknowledging they exist.
	if job == nil || job.OwnerUserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (s *generationService) GetLatestForRequestUser(dbc dbctx.Context, kind string) (*types.GenerationJob, error) {
	userID := requestdata.UserID(dbc.Ctx)
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if kind != "" && !types.IsValidJobKind(kind) {
		return nil, fmt.Errorf("%w: unknown job kind %q", apperrors.ErrInvalidArgument, kind)
	}
	job, err := s.repo.GetLatestForOwner(dbc, userID, kind)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (s *generationService) CancelForRequestUser(dbc dbctx.Context, jobID uuid.UUID) (*types.GenerationJob, error) {
	job, err := s.GetForRequestUser(dbc, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	// Guarded write: the executor never resurrects a terminal row, and the
	// same guard here means cancelling an already finished job is a no-op
	// conflict rather than a lost completion.
	cancelled, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, types.TerminalJobStatuses, map[string]interface{}{
		"status":       types.JobStatusFailed,
		"error":        "Cancelled by user.",
		"completed_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !cancelled {
		return nil, fmt.Errorf("%w: job already finished", apperrors.ErrConflict)
	}

	job, err = s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.ErrNotFound
	}
	s.notify.JobFailed(job.OwnerUserID, job, job.Step, job.Error)
	return job, nil
}
