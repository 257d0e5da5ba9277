package domain

// ChapterSkeleton is one entry of the curriculum structure produced by the
// structure phase: enough for a reviewer to approve or adjust before any
// chapter content is generated.
type ChapterSkeleton struct {
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Objectives       []string `json:"objectives"`
	EstimatedMinutes int      `json:"estimated_minutes"`
}

// CurriculumStructure is the structure-phase result and the content-phase
// input. Chapter order is significant and preserved end to end.
type CurriculumStructure struct {
	Title    string            `json:"title"`
	Chapters []ChapterSkeleton `json:"chapters"`
}

// GeneratedChapter is one fully realized chapter of the content phase.
type GeneratedChapter struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	Task            string `json:"task"`
	DurationMinutes int    `json:"duration_minutes"`
}

// CurriculumContent is the content-phase result: one generated chapter per
// skeleton entry, in the same order as the approved structure.
type CurriculumContent struct {
	Chapters []GeneratedChapter `json:"chapters"`
}

// GenerationJobPayload is the phase-specific input stored on the job row.
// Structure is nil for structure-phase jobs and required for content-phase
// jobs; referential integrity between the structure and a prior completed
// structure job is a documented caller precondition, not enforced here.
type GenerationJobPayload struct {
	Goal            string               `json:"goal"`
	TargetAudience  string               `json:"target_audience,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	DifficultyLevel string               `json:"difficulty_level,omitempty"`
	Structure       *CurriculumStructure `json:"structure,omitempty"`
}
