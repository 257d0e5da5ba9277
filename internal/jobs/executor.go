package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/skillforge/skillforge-backend/internal/data/repos/jobs"
	types "github.com/skillforge/skillforge-backend/internal/domain"
	"github.com/skillforge/skillforge-backend/internal/pkg/dbctx"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
	"github.com/skillforge/skillforge-backend/internal/services"
)

// Fixed waypoints on the progress bar. Generation interpolates between
// the floor and ceiling; parsing and completion claim the remainder.
const (
	progressConnecting      = 5
	progressGeneratingFloor = 10
	progressGeneratingCeil  = 90
	progressParsing         = 95
	progressCompleted       = 100
)

// errJobSuperseded signals that another writer (cancel, crash sweeper)
// moved the job to a terminal status while the executor was working.
// The executor stops immediately and leaves the row alone.
var errJobSuperseded = errors.New("job superseded by terminal status")

// Executor drives one generation job from queued to a terminal status.
type Executor interface {
	Execute(ctx context.Context, jobID uuid.UUID) error
}

type generationExecutor struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   jobrepo.GenerationJobRepo
	ai     services.AIClient
	notify services.JobNotifier
}

func NewGenerationExecutor(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo jobrepo.GenerationJobRepo,
	ai services.AIClient,
	notify services.JobNotifier,
) Executor {
	return &generationExecutor{
		db:     db,
		log:    baseLog.With("service", "GenerationExecutor"),
		repo:   repo,
		ai:     ai,
		notify: notify,
	}
}

func (e *generationExecutor) Execute(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	dbc := dbctx.New(ctx)

	job, err := e.repo.GetByID(dbc, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	// Claim: only a queued row can be picked up. Redelivered dispatches
	// for the same id see zero affected rows and stop here.
	now := time.Now().UTC()
	claimed, err := e.repo.UpdateFieldsWhenStatus(dbc, jobID, types.JobStatusQueued, map[string]interface{}{
		"status":     types.JobStatusConnecting,
		"progress":   progressConnecting,
		"step":       "Connecting to model provider",
		"started_at": now,
	})
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		e.log.Info("Job already claimed or finished; skipping", "job_id", jobID, "status", job.Status)
		return nil
	}
	e.notify.JobProgress(job.OwnerUserID, job, "Connecting to model provider", progressConnecting, "Connecting to model provider")

	var payload types.GenerationJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		e.fail(dbc, job, "The job request could not be read. Please submit it again.")
		return fmt.Errorf("decode payload: %w", err)
	}

	switch job.Kind {
	case types.JobKindStructure:
		err = e.runStructure(dbc, job, &payload)
	case types.JobKindContent:
		err = e.runContent(dbc, job, &payload)
	default:
		e.fail(dbc, job, "This job kind is not supported.")
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if errors.Is(err, errJobSuperseded) {
		e.log.Info("Job finished externally during execution", "job_id", jobID)
		return nil
	}
	return err
}

func (e *generationExecutor) runStructure(dbc dbctx.Context, job *types.GenerationJob, payload *types.GenerationJobPayload) error {
	if err := e.progress(dbc, job, types.JobStatusGenerating, progressGeneratingFloor, "Generating course structure"); err != nil {
		return err
	}

	system, user := buildStructurePrompts(payload)
	raw, usage, err := e.ai.GenerateText(dbc.Ctx, system, user)
	if err != nil {
		e.fail(dbc, job, classifyGenerationError(err))
		return fmt.Errorf("generate structure: %w", err)
	}

	if err := e.progress(dbc, job, types.JobStatusGenerating, progressGeneratingCeil, "Structure generated"); err != nil {
		return err
	}
	if err := e.progress(dbc, job, types.JobStatusParsing, progressParsing, "Validating generated structure"); err != nil {
		return err
	}

	structure, err := parseStructure(raw)
	if err != nil {
		e.fail(dbc, job, "The model returned an unreadable course structure. Please try again.")
		return fmt.Errorf("parse structure: %w", err)
	}

	result, err := json.Marshal(structure)
	if err != nil {
		e.fail(dbc, job, "The generated structure could not be saved.")
		return fmt.Errorf("encode result: %w", err)
	}
	return e.complete(dbc, job, result, usage)
}

func (e *generationExecutor) runContent(dbc dbctx.Context, job *types.GenerationJob, payload *types.GenerationJobPayload) error {
	if payload.Structure == nil || len(payload.Structure.Chapters) == 0 {
		e.fail(dbc, job, "Content generation requires an approved course structure.")
		return fmt.Errorf("content job %s has no structure", job.ID)
	}

	total := len(payload.Structure.Chapters)
	chapters := make([]types.GeneratedChapter, 0, total)
	var usage services.GenerationUsage

	for i, skeleton := range payload.Structure.Chapters {
		// Cooperative cancellation: re-read between chapters so an
		// externally cancelled job stops before the next provider call.
		current, err := e.repo.GetByID(dbc, job.ID)
		if err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		if current == nil || types.IsTerminalJobStatus(current.Status) {
			return errJobSuperseded
		}

		pct := interpolateProgress(i, total)
		step := fmt.Sprintf("Generating chapter %d of %d: %s", i+1, total, skeleton.Title)
		if err := e.progress(dbc, job, types.JobStatusGenerating, pct, step); err != nil {
			return err
		}

		system, user := buildChapterPrompts(payload, skeleton, i+1, total)
		raw, callUsage, err := e.ai.GenerateText(dbc.Ctx, system, user)
		if err != nil {
			e.fail(dbc, job, classifyGenerationError(err))
			return fmt.Errorf("generate chapter %d: %w", i+1, err)
		}
		if callUsage != nil {
			usage.PromptTokens += callUsage.PromptTokens
			usage.CompletionTokens += callUsage.CompletionTokens
			usage.Model = callUsage.Model
		}

		chapter, err := parseChapter(raw)
		if err != nil {
			e.fail(dbc, job, "The model returned an unreadable chapter. Please try again.")
			return fmt.Errorf("parse chapter %d: %w", i+1, err)
		}
		if chapter.Title == "" {
			chapter.Title = skeleton.Title
		}
		chapters = append(chapters, *chapter)
	}

	if err := e.progress(dbc, job, types.JobStatusParsing, progressParsing, "Assembling course content"); err != nil {
		return err
	}

	result, err := json.Marshal(types.CurriculumContent{Chapters: chapters})
	if err != nil {
		e.fail(dbc, job, "The generated content could not be saved.")
		return fmt.Errorf("encode result: %w", err)
	}
	return e.complete(dbc, job, result, &usage)
}

// interpolateProgress maps chapters-done onto the generating band.
func interpolateProgress(done, total int) int {
	if total <= 0 {
		return progressGeneratingFloor
	}
	span := progressGeneratingCeil - progressGeneratingFloor
	return progressGeneratingFloor + span*done/total
}

// progress advances the job unless something else already finished it.
// Terminal rows are never touched; in that case errJobSuperseded tells
// the caller to stop.
func (e *generationExecutor) progress(dbc dbctx.Context, job *types.GenerationJob, status string, pct int, step string) error {
	applied, err := e.repo.UpdateFieldsUnlessStatus(dbc, job.ID, types.TerminalJobStatuses, map[string]interface{}{
		"status":   status,
		"progress": pct,
		"step":     step,
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if !applied {
		return errJobSuperseded
	}
	job.Status = status
	job.Progress = pct
	job.Step = step
	e.notify.JobProgress(job.OwnerUserID, job, step, pct, step)
	return nil
}

// fail records a user-facing failure message. Best-effort: if the row
// already reached a terminal status the write is skipped and no failure
// event goes out.
func (e *generationExecutor) fail(dbc dbctx.Context, job *types.GenerationJob, message string) {
	now := time.Now().UTC()
	applied, err := e.repo.UpdateFieldsUnlessStatus(dbc, job.ID, types.TerminalJobStatuses, map[string]interface{}{
		"status":       types.JobStatusFailed,
		"error":        message,
		"completed_at": now,
	})
	if err != nil {
		e.log.Error("Failed to record job failure", "job_id", job.ID, "error", err)
		return
	}
	if !applied {
		return
	}
	job.Status = types.JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	e.notify.JobFailed(job.OwnerUserID, job, job.Step, message)
}

func (e *generationExecutor) complete(dbc dbctx.Context, job *types.GenerationJob, result []byte, usage *services.GenerationUsage) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       types.JobStatusCompleted,
		"progress":     progressCompleted,
		"step":         "Completed",
		"result":       datatypes.JSON(result),
		"completed_at": now,
	}
	if usage != nil {
		updates["tokens_in"] = usage.PromptTokens
		updates["tokens_out"] = usage.CompletionTokens
		updates["model_used"] = usage.Model
	}
	applied, err := e.repo.UpdateFieldsUnlessStatus(dbc, job.ID, types.TerminalJobStatuses, updates)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !applied {
		return errJobSuperseded
	}

	final, err := e.repo.GetByID(dbc, job.ID)
	if err != nil || final == nil {
		final = job
		final.Status = types.JobStatusCompleted
		final.Progress = progressCompleted
	}
	e.notify.JobDone(final.OwnerUserID, final)
	e.log.Info("Job completed",
		"job_id", job.ID,
		"kind", job.Kind,
		"tokens_in", updates["tokens_in"],
		"tokens_out", updates["tokens_out"],
	)
	return nil
}
