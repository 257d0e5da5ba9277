package workflow

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/skillforge/skillforge-backend/internal/domain"
)

func structureResult(t *testing.T) datatypes.JSON {
	t.Helper()
	b, err := json.Marshal(types.CurriculumStructure{
		Title: "Manager Essentials",
		Chapters: []types.ChapterSkeleton{
			{Title: "Giving Feedback", EstimatedMinutes: 30},
			{Title: "Running 1:1s", EstimatedMinutes: 30},
		},
	})
	if err != nil {
		t.Fatalf("marshal structure: %v", err)
	}
	return datatypes.JSON(b)
}

func contentResult(t *testing.T) datatypes.JSON {
	t.Helper()
	b, err := json.Marshal(types.CurriculumContent{
		Chapters: []types.GeneratedChapter{
			{Title: "Giving Feedback", Body: "..."},
			{Title: "Running 1:1s", Body: "..."},
		},
	})
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return datatypes.JSON(b)
}

func finishedJob(id uuid.UUID, status string, result datatypes.JSON, errMsg string) *types.GenerationJob {
	return &types.GenerationJob{ID: id, Status: status, Result: result, Error: errMsg}
}

func TestCourseBuilderHappyPath(t *testing.T) {
	b := NewCourseBuilder()
	if b.Phase() != PhaseInput {
		t.Fatalf("initial phase: %q", b.Phase())
	}

	structureJob := uuid.New()
	if err := b.StructureStarted(structureJob); err != nil {
		t.Fatalf("StructureStarted: %v", err)
	}
	if b.Phase() != PhaseStructureGenerating {
		t.Fatalf("phase: %q", b.Phase())
	}

	if err := b.HandleJobFinished(finishedJob(structureJob, types.JobStatusCompleted, structureResult(t), "")); err != nil {
		t.Fatalf("HandleJobFinished(structure): %v", err)
	}
	if b.Phase() != PhaseStructureReview {
		t.Fatalf("phase after structure: %q", b.Phase())
	}
	if b.Structure() == nil || len(b.Structure().Chapters) != 2 {
		t.Fatalf("structure not adopted: %+v", b.Structure())
	}

	approved, err := b.Approve()
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Title != "Manager Essentials" {
		t.Fatalf("approved structure: %+v", approved)
	}

	contentJob := uuid.New()
	if err := b.ContentStarted(contentJob); err != nil {
		t.Fatalf("ContentStarted: %v", err)
	}
	if err := b.HandleJobFinished(finishedJob(contentJob, types.JobStatusCompleted, contentResult(t), "")); err != nil {
		t.Fatalf("HandleJobFinished(content): %v", err)
	}
	if b.Phase() != PhaseDone {
		t.Fatalf("final phase: %q", b.Phase())
	}
	if b.Content() == nil || len(b.Content().Chapters) != 2 {
		t.Fatalf("content not adopted: %+v", b.Content())
	}
}

func TestCourseBuilderFailureRevertsPhase(t *testing.T) {
	b := NewCourseBuilder()
	structureJob := uuid.New()
	if err := b.StructureStarted(structureJob); err != nil {
		t.Fatalf("StructureStarted: %v", err)
	}
	if err := b.HandleJobFinished(finishedJob(structureJob, types.JobStatusFailed, nil, "provider unavailable")); err != nil {
		t.Fatalf("HandleJobFinished: %v", err)
	}
	if b.Phase() != PhaseInput {
		t.Fatalf("phase after failure: %q", b.Phase())
	}
	if b.LastError() != "provider unavailable" {
		t.Fatalf("last error: %q", b.LastError())
	}

	// A content failure falls back to review, keeping the structure.
	if err := b.StructureStarted(structureJob); err != nil {
		t.Fatalf("retry StructureStarted: %v", err)
	}
	if err := b.HandleJobFinished(finishedJob(structureJob, types.JobStatusCompleted, structureResult(t), "")); err != nil {
		t.Fatalf("HandleJobFinished: %v", err)
	}
	contentJob := uuid.New()
	if err := b.ContentStarted(contentJob); err != nil {
		t.Fatalf("ContentStarted: %v", err)
	}
	if err := b.HandleJobFinished(finishedJob(contentJob, types.JobStatusFailed, nil, "cancelled by user")); err != nil {
		t.Fatalf("HandleJobFinished: %v", err)
	}
	if b.Phase() != PhaseStructureReview {
		t.Fatalf("phase after content failure: %q", b.Phase())
	}
	if b.Structure() == nil {
		t.Fatalf("structure lost on content failure")
	}
}

func TestCourseBuilderIgnoresForeignJobs(t *testing.T) {
	b := NewCourseBuilder()
	structureJob := uuid.New()
	if err := b.StructureStarted(structureJob); err != nil {
		t.Fatalf("StructureStarted: %v", err)
	}

	if err := b.HandleJobFinished(finishedJob(uuid.New(), types.JobStatusCompleted, structureResult(t), "")); err != nil {
		t.Fatalf("HandleJobFinished: %v", err)
	}
	if b.Phase() != PhaseStructureGenerating {
		t.Fatalf("foreign job moved the phase: %q", b.Phase())
	}
}

func TestCourseBuilderGuardsTransitions(t *testing.T) {
	b := NewCourseBuilder()

	if _, err := b.Approve(); err == nil {
		t.Fatalf("Approve from input should fail")
	}
	if err := b.ContentStarted(uuid.New()); err == nil {
		t.Fatalf("ContentStarted from input should fail")
	}
	if err := b.StructureStarted(uuid.New()); err != nil {
		t.Fatalf("StructureStarted: %v", err)
	}
	if err := b.StructureStarted(uuid.New()); err == nil {
		t.Fatalf("double StructureStarted should fail")
	}
}
