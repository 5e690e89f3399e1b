package transcript_test

import (
	"strings"
	"testing"

	"reelforge/internal/transcript"
)

func TestRenderSRTSingleTrack(t *testing.T) {
	segments := []transcript.Segment{
		seg("First line.", 0.5, 2.25),
		seg("Second line.", 2.5, 4.0),
	}
	out := transcript.RenderSRT(segments, nil)
	want := strings.Join([]string{
		"1",
		"00:00:00,500 --> 00:00:02,250",
		"First line.",
		"",
		"2",
		"00:00:02,500 --> 00:00:04,000",
		"Second line.",
		"",
		"",
	}, "\n")
	if out != want {
		t.Fatalf("unexpected SRT output:\n%s", out)
	}
}

func TestRenderSRTDualTrack(t *testing.T) {
	segments := []transcript.Segment{seg("Hola a todos.", 0, 2)}
	translated := []transcript.Segment{seg("Hello everyone.", 0, 2)}
	out := transcript.RenderSRT(segments, translated)
	if !strings.Contains(out, "Hola a todos.\nHello everyone.\n") {
		t.Fatalf("expected both tracks in output:\n%s", out)
	}
}

func TestRenderSRTSkipsEmptyEntriesAndRenumbers(t *testing.T) {
	segments := []transcript.Segment{
		seg("", 0, 1),
		seg("Kept.", 1, 2),
	}
	out := transcript.RenderSRT(segments, nil)
	if strings.Contains(out, "00:00:00,000") {
		t.Fatalf("empty segment should be skipped:\n%s", out)
	}
	if !strings.HasPrefix(out, "1\n00:00:01,000") {
		t.Fatalf("entries should renumber from 1:\n%s", out)
	}
}

func TestRenderSRTTimestampsPastOneHour(t *testing.T) {
	segments := []transcript.Segment{seg("Late.", 3661.5, 3663.0)}
	out := transcript.RenderSRT(segments, nil)
	if !strings.Contains(out, "01:01:01,500 --> 01:01:03,000") {
		t.Fatalf("unexpected timestamp rendering:\n%s", out)
	}
}
