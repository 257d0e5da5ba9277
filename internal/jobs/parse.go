package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/skillforge/skillforge-backend/internal/domain"
)

// decodeFencedJSON tolerates the markdown code fences models wrap JSON
// in despite instructions not to.
func decodeFencedJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal([]byte(s), out)
}

func parseStructure(raw string) (*types.CurriculumStructure, error) {
	var structure types.CurriculumStructure
	if err := decodeFencedJSON(raw, &structure); err != nil {
		return nil, err
	}
	if strings.TrimSpace(structure.Title) == "" {
		return nil, fmt.Errorf("structure missing title")
	}
	if len(structure.Chapters) == 0 {
		return nil, fmt.Errorf("structure has no chapters")
	}
	for i, ch := range structure.Chapters {
		if strings.TrimSpace(ch.Title) == "" {
			return nil, fmt.Errorf("chapter %d missing title", i+1)
		}
	}
	return &structure, nil
}

func parseChapter(raw string) (*types.GeneratedChapter, error) {
	var chapter types.GeneratedChapter
	if err := decodeFencedJSON(raw, &chapter); err != nil {
		return nil, err
	}
	if strings.TrimSpace(chapter.Body) == "" {
		return nil, fmt.Errorf("chapter missing body")
	}
	return &chapter, nil
}
