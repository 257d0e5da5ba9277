package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/skillforge/skillforge-backend/internal/data/repos/jobs"
	"github.com/skillforge/skillforge-backend/internal/data/repos/testutil"
	types "github.com/skillforge/skillforge-backend/internal/domain"
	"github.com/skillforge/skillforge-backend/internal/pkg/dbctx"
	"github.com/skillforge/skillforge-backend/internal/services"
)

type scriptedAI struct {
	mu        sync.Mutex
	responses []string
	err       error
	errAtCall int // 1-based; 0 means err applies to every call
	calls     int
	afterCall func(call int)
}

func (a *scriptedAI) GenerateText(ctx context.Context, system, user string) (string, *services.GenerationUsage, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	var resp string
	if len(a.responses) > 0 {
		idx := call - 1
		if idx >= len(a.responses) {
			idx = len(a.responses) - 1
		}
		resp = a.responses[idx]
	}
	err := a.err
	if err != nil && a.errAtCall > 0 && call != a.errAtCall {
		err = nil
	}
	hook := a.afterCall
	a.mu.Unlock()

	if hook != nil {
		defer hook(call)
	}
	if err != nil {
		return "", nil, err
	}
	return resp, &services.GenerationUsage{PromptTokens: 100, CompletionTokens: 50, Model: "test-model"}, nil
}

func (a *scriptedAI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type execEvent struct {
	Kind     string
	Status   string
	Step     string
	Progress int
	Message  string
}

type execRecorder struct {
	mu     sync.Mutex
	events []execEvent
}

func (n *execRecorder) JobCreated(userID uuid.UUID, job *types.GenerationJob) {
	n.add(execEvent{Kind: "created", Status: job.Status})
}

func (n *execRecorder) JobProgress(userID uuid.UUID, job *types.GenerationJob, step string, progress int, message string) {
	n.add(execEvent{Kind: "progress", Status: job.Status, Step: step, Progress: progress, Message: message})
}

func (n *execRecorder) JobFailed(userID uuid.UUID, job *types.GenerationJob, step string, errorMessage string) {
	n.add(execEvent{Kind: "failed", Status: job.Status, Step: step, Message: errorMessage})
}

func (n *execRecorder) JobDone(userID uuid.UUID, job *types.GenerationJob) {
	n.add(execEvent{Kind: "done", Status: job.Status, Progress: job.Progress})
}

func (n *execRecorder) add(ev execEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *execRecorder) snapshot() []execEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]execEvent, len(n.events))
	copy(out, n.events)
	return out
}

func structureJSON(chapters int) string {
	type ch struct {
		Title            string   `json:"title"`
		Summary          string   `json:"summary"`
		Objectives       []string `json:"objectives"`
		EstimatedMinutes int      `json:"estimated_minutes"`
	}
	out := map[string]any{"title": "Security Awareness Fundamentals"}
	var list []ch
	for i := 1; i <= chapters; i++ {
		list = append(list, ch{
			Title:            fmt.Sprintf("Chapter %d", i),
			Summary:          "Overview",
			Objectives:       []string{"understand the topic"},
			EstimatedMinutes: 30,
		})
	}
	out["chapters"] = list
	b, _ := json.Marshal(out)
	return string(b)
}

func chapterJSON(title string) string {
	b, _ := json.Marshal(map[string]any{
		"title":            title,
		"body":             "## " + title + "\n\nContent body.",
		"task":             "Apply this to your own team.",
		"duration_minutes": 25,
	})
	return string(b)
}

func seedJob(t *testing.T, repo jobrepo.GenerationJobRepo, kind string, payload *types.GenerationJobPayload) *types.GenerationJob {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	now := time.Now()
	job := &types.GenerationJob{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Kind:        kind,
		Status:      types.JobStatusQueued,
		Step:        "Queued",
		Payload:     datatypes.JSON(raw),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := repo.Create(dbctx.New(context.Background()), []*types.GenerationJob{job}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func newTestExecutor(t *testing.T, ai services.AIClient) (Executor, jobrepo.GenerationJobRepo, *execRecorder) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewGenerationJobRepo(db, log)
	recorder := &execRecorder{}
	return NewGenerationExecutor(db, log, repo, ai, recorder), repo, recorder
}

func contentPayload(chapters int) *types.GenerationJobPayload {
	structure := &types.CurriculumStructure{Title: "Security Awareness Fundamentals"}
	for i := 1; i <= chapters; i++ {
		structure.Chapters = append(structure.Chapters, types.ChapterSkeleton{
			Title:            fmt.Sprintf("Chapter %d", i),
			Summary:          "Overview",
			EstimatedMinutes: 30,
		})
	}
	return &types.GenerationJobPayload{
		Goal:            "Teach the team how to recognize phishing attempts",
		TargetAudience:  "all employees",
		DurationMinutes: 90,
		Structure:       structure,
	}
}

func TestExecuteStructureJobCompletes(t *testing.T) {
	ai := &scriptedAI{responses: []string{structureJSON(3)}}
	exec, repo, recorder := newTestExecutor(t, ai)
	job := seedJob(t, repo, types.JobKindStructure, &types.GenerationJobPayload{
		Goal:            "Teach the team how to recognize phishing attempts",
		DurationMinutes: 90,
	})

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != types.JobStatusCompleted {
		t.Fatalf("status: want=%q got=%q (error=%q)", types.JobStatusCompleted, final.Status, final.Error)
	}
	if final.Progress != 100 {
		t.Fatalf("progress: want=100 got=%d", final.Progress)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Fatalf("timestamps: started=%v completed=%v", final.StartedAt, final.CompletedAt)
	}
	if final.TokensIn != 100 || final.TokensOut != 50 || final.ModelUsed != "test-model" {
		t.Fatalf("usage: in=%d out=%d model=%q", final.TokensIn, final.TokensOut, final.ModelUsed)
	}

	var structure types.CurriculumStructure
	if err := json.Unmarshal(final.Result, &structure); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(structure.Chapters) != 3 {
		t.Fatalf("result chapters: want=3 got=%d", len(structure.Chapters))
	}

	// Progress only ever moves forward.
	last := -1
	sawDone := false
	for _, ev := range recorder.snapshot() {
		switch ev.Kind {
		case "progress":
			if ev.Progress < last {
				t.Fatalf("progress went backwards: %d -> %d", last, ev.Progress)
			}
			last = ev.Progress
		case "done":
			sawDone = true
		case "failed":
			t.Fatalf("unexpected failure event: %+v", ev)
		}
	}
	if !sawDone {
		t.Fatalf("missing done event: %+v", recorder.snapshot())
	}
}

func TestExecuteContentJobGeneratesChaptersInOrder(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		chapterJSON("Chapter 1"),
		chapterJSON("Chapter 2"),
		chapterJSON("Chapter 3"),
	}}
	exec, repo, recorder := newTestExecutor(t, ai)
	job := seedJob(t, repo, types.JobKindContent, contentPayload(3))

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != types.JobStatusCompleted {
		t.Fatalf("status: want=%q got=%q (error=%q)", types.JobStatusCompleted, final.Status, final.Error)
	}
	if ai.callCount() != 3 {
		t.Fatalf("provider calls: want=3 got=%d", ai.callCount())
	}
	// Per-call usage accumulates across chapters.
	if final.TokensIn != 300 || final.TokensOut != 150 {
		t.Fatalf("usage: in=%d out=%d", final.TokensIn, final.TokensOut)
	}

	var content types.CurriculumContent
	if err := json.Unmarshal(final.Result, &content); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(content.Chapters) != 3 {
		t.Fatalf("content chapters: want=3 got=%d", len(content.Chapters))
	}
	for i, ch := range content.Chapters {
		want := fmt.Sprintf("Chapter %d", i+1)
		if ch.Title != want {
			t.Fatalf("chapter %d title: want=%q got=%q", i, want, ch.Title)
		}
	}

	var chapterSteps []string
	for _, ev := range recorder.snapshot() {
		if ev.Kind == "progress" && strings.HasPrefix(ev.Step, "Generating chapter") {
			chapterSteps = append(chapterSteps, ev.Step)
		}
	}
	wantSteps := []string{
		"Generating chapter 1 of 3: Chapter 1",
		"Generating chapter 2 of 3: Chapter 2",
		"Generating chapter 3 of 3: Chapter 3",
	}
	if len(chapterSteps) != len(wantSteps) {
		t.Fatalf("chapter steps: want=%d got=%d (%v)", len(wantSteps), len(chapterSteps), chapterSteps)
	}
	for i := range wantSteps {
		if chapterSteps[i] != wantSteps[i] {
			t.Fatalf("step %d: want=%q got=%q", i, wantSteps[i], chapterSteps[i])
		}
	}
}

func TestExecuteStopsWhenJobCancelledBetweenChapters(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewGenerationJobRepo(db, log)
	recorder := &execRecorder{}

	// After the first chapter call, cancel the job out-of-band the way the
	// submission API does: a guarded flip to failed.
	ai := &scriptedAI{responses: []string{chapterJSON("Chapter 1")}}
	job := seedJob(t, repo, types.JobKindContent, contentPayload(3))
	ai.afterCall = func(call int) {
		if call == 1 {
			now := time.Now().UTC()
			if _, err := repo.UpdateFieldsUnlessStatus(dbctx.New(context.Background()), job.ID, types.TerminalJobStatuses, map[string]interface{}{
				"status":       types.JobStatusFailed,
				"error":        "Cancelled by user.",
				"completed_at": now,
			}); err != nil {
				t.Errorf("cancel job: %v", err)
			}
		}
	}

	exec := NewGenerationExecutor(db, log, repo, ai, recorder)
	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if ai.callCount() != 1 {
		t.Fatalf("provider calls after cancel: want=1 got=%d", ai.callCount())
	}

	final, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != types.JobStatusFailed {
		t.Fatalf("status: want=%q got=%q", types.JobStatusFailed, final.Status)
	}
	if final.Error != "Cancelled by user." {
		t.Fatalf("cancel reason overwritten: %q", final.Error)
	}
}

func TestExecuteIsNoOpForAlreadyClaimedJob(t *testing.T) {
	ai := &scriptedAI{responses: []string{structureJSON(2)}}
	exec, repo, _ := newTestExecutor(t, ai)
	job := seedJob(t, repo, types.JobKindStructure, &types.GenerationJobPayload{
		Goal: "Teach the team how to recognize phishing attempts",
	})

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	callsAfterFirst := ai.callCount()

	// Redelivered dispatch for a finished job must not touch the provider.
	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if ai.callCount() != callsAfterFirst {
		t.Fatalf("provider calls: want=%d got=%d", callsAfterFirst, ai.callCount())
	}
}

func TestExecuteFailsOnUnreadableModelOutput(t *testing.T) {
	ai := &scriptedAI{responses: []string{"I'd be happy to help you design a course!"}}
	exec, repo, recorder := newTestExecutor(t, ai)
	job := seedJob(t, repo, types.JobKindStructure, &types.GenerationJobPayload{
		Goal: "Teach the team how to recognize phishing attempts",
	})

	if err := exec.Execute(context.Background(), job.ID); err == nil {
		t.Fatalf("want parse error, got nil")
	}

	final, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != types.JobStatusFailed {
		t.Fatalf("status: want=%q got=%q", types.JobStatusFailed, final.Status)
	}
	if !strings.Contains(final.Error, "unreadable") {
		t.Fatalf("error message: %q", final.Error)
	}

	failed := false
	for _, ev := range recorder.snapshot() {
		if ev.Kind == "failed" {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("missing failed event")
	}
}

func TestExecuteClassifiesProviderRateLimit(t *testing.T) {
	ai := &scriptedAI{err: &services.ProviderHTTPError{StatusCode: 429, Body: "slow down"}}
	exec, repo, _ := newTestExecutor(t, ai)
	job := seedJob(t, repo, types.JobKindStructure, &types.GenerationJobPayload{
		Goal: "Teach the team how to recognize phishing attempts",
	})

	if err := exec.Execute(context.Background(), job.ID); err == nil {
		t.Fatalf("want provider error, got nil")
	}

	final, err := repo.GetByID(dbctx.New(context.Background()), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != types.JobStatusFailed {
		t.Fatalf("status: want=%q got=%q", types.JobStatusFailed, final.Status)
	}
	if !strings.Contains(final.Error, "rate limiting") {
		t.Fatalf("error message: %q", final.Error)
	}
	if strings.Contains(final.Error, "slow down") {
		t.Fatalf("raw provider body leaked into user-facing error: %q", final.Error)
	}
}
