package jobs

import (
	"fmt"
	"strings"

	types "github.com/skillforge/skillforge-backend/internal/domain"
)

const structureSystemPrompt = `You are a corporate training curriculum designer.
Respond with a single JSON object and nothing else. The object must have:
- "title": a short course title
- "chapters": an array of 3-8 chapters, each with "title", "summary",
  "objectives" (array of strings) and "estimated_minutes" (integer).
Chapter minutes should roughly sum to the requested course duration.`

const chapterSystemPrompt = `You are a corporate training content writer.
Respond with a single JSON object and nothing else. The object must have:
- "title": the chapter title
- "body": the full chapter text in markdown
- "task": a short practical exercise for the learner
- "duration_minutes": integer reading/working time`

func buildStructurePrompts(payload *types.GenerationJobPayload) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Learning goal: %s\n", strings.TrimSpace(payload.Goal))
	if payload.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", payload.TargetAudience)
	}
	if payload.DurationMinutes > 0 {
		fmt.Fprintf(&b, "Total course duration: %d minutes\n", payload.DurationMinutes)
	}
	if payload.DifficultyLevel != "" {
		fmt.Fprintf(&b, "Difficulty level: %s\n", payload.DifficultyLevel)
	}
	b.WriteString("\nDesign the course structure.")
	return structureSystemPrompt, b.String()
}

func buildChapterPrompts(payload *types.GenerationJobPayload, skeleton types.ChapterSkeleton, index, total int) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Course goal: %s\n", strings.TrimSpace(payload.Goal))
	if payload.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", payload.TargetAudience)
	}
	if payload.DifficultyLevel != "" {
		fmt.Fprintf(&b, "Difficulty level: %s\n", payload.DifficultyLevel)
	}
	fmt.Fprintf(&b, "\nWrite chapter %d of %d.\n", index, total)
	fmt.Fprintf(&b, "Chapter title: %s\n", skeleton.Title)
	if skeleton.Summary != "" {
		fmt.Fprintf(&b, "Chapter summary: %s\n", skeleton.Summary)
	}
	if len(skeleton.Objectives) > 0 {
		fmt.Fprintf(&b, "Objectives:\n")
		for _, obj := range skeleton.Objectives {
			fmt.Fprintf(&b, "- %s\n", obj)
		}
	}
	if skeleton.EstimatedMinutes > 0 {
		fmt.Fprintf(&b, "Target length: about %d minutes of learner time\n", skeleton.EstimatedMinutes)
	}
	return chapterSystemPrompt, b.String()
}
