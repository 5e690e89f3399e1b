package transcript_test

import (
	"strings"
	"testing"

	"reelforge/internal/transcript"
)

func seg(text string, start, end float64) transcript.Segment {
	return transcript.Segment{Text: text, Start: start, End: end}
}

func TestSplitRespectsSegmentBoundaries(t *testing.T) {
	segments := []transcript.Segment{
		seg("Hello everyone and welcome back to the podcast.", 0.5, 3.5),
		seg("Today we're talking about the future of AI.", 3.8, 6.9),
		seg("It's a rapidly evolving field with many exciting developments.", 7.2, 11.5),
		seg("Let's dive into some of the latest trends.", 12.0, 14.5),
	}
	scenes := transcript.Split(segments, 15)
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].Start != 0.5 || scenes[0].End != 6.9 {
		t.Fatalf("unexpected first scene timing: %+v", scenes[0])
	}
	if !strings.HasSuffix(scenes[0].Text, "future of AI.") {
		t.Fatalf("unexpected first scene text: %q", scenes[0].Text)
	}
	if scenes[1].Start != 7.2 || scenes[1].End != 14.5 {
		t.Fatalf("unexpected second scene timing: %+v", scenes[1])
	}
	for i, sc := range scenes {
		if sc.Index != i {
			t.Fatalf("scene %d carries index %d", i, sc.Index)
		}
	}
}

func TestSplitOversizedSegmentBecomesOwnScene(t *testing.T) {
	long := strings.Repeat("word ", 40)
	segments := []transcript.Segment{
		seg(strings.TrimSpace(long), 0.0, 15.0),
		seg("short trailing segment here", 15.5, 18.0),
	}
	scenes := transcript.Split(segments, 10)
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].End != 15.0 {
		t.Fatalf("oversized segment should keep its own timing: %+v", scenes[0])
	}
	if scenes[1].Text != "short trailing segment here" {
		t.Fatalf("unexpected trailing scene: %q", scenes[1].Text)
	}
}

func TestSplitAllowsSlackBeforeFinalizing(t *testing.T) {
	segments := []transcript.Segment{
		seg("one two three four five six seven eight", 0, 2),
		seg("nine ten eleven twelve", 2, 4),
	}
	// 8 + 4 = 12 words fits within budget 10 plus slack 5.
	scenes := transcript.Split(segments, 10)
	if len(scenes) != 1 {
		t.Fatalf("expected slack to keep one scene, got %d", len(scenes))
	}
}

func TestSplitSkipsEmptySegmentsAndEmptyInput(t *testing.T) {
	if scenes := transcript.Split(nil, 20); scenes != nil {
		t.Fatalf("expected nil scenes for empty input, got %v", scenes)
	}
	segments := []transcript.Segment{
		seg("   ", 0, 1),
		seg("real text here", 1, 2),
	}
	scenes := transcript.Split(segments, 20)
	if len(scenes) != 1 || scenes[0].Text != "real text here" {
		t.Fatalf("unexpected scenes: %+v", scenes)
	}
	if scenes[0].Start != 1 {
		t.Fatalf("blank segment must not contribute timing: %+v", scenes[0])
	}
}
