package workflow

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	types "github.com/skillforge/skillforge-backend/internal/domain"
)

// Phase is where a course build currently sits. Structure must be
// reviewed and approved by the author before content generation starts.
type Phase string

const (
	PhaseInput               Phase = "input"
	PhaseStructureGenerating Phase = "structure_generating"
	PhaseStructureReview     Phase = "structure_review"
	PhaseContentGenerating   Phase = "content_generating"
	PhaseDone                Phase = "done"
)

// CourseBuilder tracks one author's course build across the two
// generation jobs. It consumes finished job records and advances or
// reverts the phase; updates for jobs it did not start are ignored.
type CourseBuilder struct {
	mu        sync.Mutex
	phase     Phase
	jobID     uuid.UUID
	structure *types.CurriculumStructure
	content   *types.CurriculumContent
	lastError string
}

func NewCourseBuilder() *CourseBuilder {
	return &CourseBuilder{phase: PhaseInput}
}

func (b *CourseBuilder) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *CourseBuilder) Structure() *types.CurriculumStructure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.structure
}

func (b *CourseBuilder) Content() *types.CurriculumContent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// LastError is the most recent failure reason, cleared when a new job
// starts.
func (b *CourseBuilder) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// StructureStarted records a submitted structure job.
func (b *CourseBuilder) StructureStarted(jobID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseInput {
		return fmt.Errorf("cannot start structure generation from phase %q", b.phase)
	}
	b.phase = PhaseStructureGenerating
	b.jobID = jobID
	b.lastError = ""
	return nil
}

// Approve accepts the generated structure and returns it for the
// content submission.
func (b *CourseBuilder) Approve() (*types.CurriculumStructure, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseStructureReview {
		return nil, fmt.Errorf("cannot approve from phase %q", b.phase)
	}
	if b.structure == nil {
		return nil, fmt.Errorf("no structure to approve")
	}
	return b.structure, nil
}

// ContentStarted records a submitted content job for the approved
// structure.
func (b *CourseBuilder) ContentStarted(jobID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseStructureReview {
		return fmt.Errorf("cannot start content generation from phase %q", b.phase)
	}
	if b.structure == nil {
		return fmt.Errorf("no approved structure")
	}
	b.phase = PhaseContentGenerating
	b.jobID = jobID
	b.lastError = ""
	return nil
}

// HandleJobFinished consumes a terminal job record. A completed job
// adopts the result and advances; a failed job reverts to the phase the
// build was in before the job started, keeping earlier results.
func (b *CourseBuilder) HandleJobFinished(job *types.GenerationJob) error {
	if job == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if job.ID != b.jobID {
		return nil
	}

	switch job.Status {
	case types.JobStatusFailed:
		b.lastError = job.Error
		switch b.phase {
		case PhaseStructureGenerating:
			b.phase = PhaseInput
		case PhaseContentGenerating:
			b.phase = PhaseStructureReview
		}
		return nil

	case types.JobStatusCompleted:
		switch b.phase {
		case PhaseStructureGenerating:
			var structure types.CurriculumStructure
			if err := json.Unmarshal(job.Result, &structure); err != nil {
				return fmt.Errorf("decode structure result: %w", err)
			}
			b.structure = &structure
			b.phase = PhaseStructureReview
			return nil
		case PhaseContentGenerating:
			var content types.CurriculumContent
			if err := json.Unmarshal(job.Result, &content); err != nil {
				return fmt.Errorf("decode content result: %w", err)
			}
			b.content = &content
			b.phase = PhaseDone
			return nil
		}
		return nil

	default:
		// Non-terminal records are someone else's concern.
		return nil
	}
}
