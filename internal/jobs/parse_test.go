package jobs

import (
	"testing"
)

func TestDecodeFencedJSONStripsCodeFences(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bare", `{"title":"Intro","chapters":[{"title":"One"}]}`},
		{"fenced", "```json\n{\"title\":\"Intro\",\"chapters\":[{\"title\":\"One\"}]}\n```"},
		{"fenced no lang", "```\n{\"title\":\"Intro\",\"chapters\":[{\"title\":\"One\"}]}\n```"},
		{"leading whitespace", "  \n```json\n{\"title\":\"Intro\",\"chapters\":[{\"title\":\"One\"}]}\n```\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			structure, err := parseStructure(tc.raw)
			if err != nil {
				t.Fatalf("parseStructure: %v", err)
			}
			if structure.Title != "Intro" || len(structure.Chapters) != 1 {
				t.Fatalf("unexpected structure: %+v", structure)
			}
		})
	}
}

func TestParseStructureRejectsIncompleteOutput(t *testing.T) {
	if _, err := parseStructure(`{"title":"Intro","chapters":[]}`); err == nil {
		t.Fatalf("want error for empty chapters")
	}
	if _, err := parseStructure(`{"chapters":[{"title":"One"}]}`); err == nil {
		t.Fatalf("want error for missing title")
	}
	if _, err := parseStructure(`{"title":"Intro","chapters":[{"summary":"no title"}]}`); err == nil {
		t.Fatalf("want error for chapter without title")
	}
	if _, err := parseStructure("not json at all"); err == nil {
		t.Fatalf("want error for prose output")
	}
}

func TestParseChapterRequiresBody(t *testing.T) {
	if _, err := parseChapter(`{"title":"One","body":""}`); err == nil {
		t.Fatalf("want error for empty body")
	}
	ch, err := parseChapter(`{"title":"One","body":"text","task":"do it","duration_minutes":10}`)
	if err != nil {
		t.Fatalf("parseChapter: %v", err)
	}
	if ch.Task != "do it" || ch.DurationMinutes != 10 {
		t.Fatalf("unexpected chapter: %+v", ch)
	}
}

func TestInterpolateProgressStaysInGeneratingBand(t *testing.T) {
	if got := interpolateProgress(0, 5); got != progressGeneratingFloor {
		t.Fatalf("start: want=%d got=%d", progressGeneratingFloor, got)
	}
	if got := interpolateProgress(5, 5); got != progressGeneratingCeil {
		t.Fatalf("end: want=%d got=%d", progressGeneratingCeil, got)
	}
	prev := -1
	for done := 0; done <= 7; done++ {
		got := interpolateProgress(done, 7)
		if got < prev {
			t.Fatalf("not monotonic at %d: %d < %d", done, got, prev)
		}
		if got < progressGeneratingFloor || got > progressGeneratingCeil {
			t.Fatalf("out of band at %d: %d", done, got)
		}
		prev = got
	}
}
