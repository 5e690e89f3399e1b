package transcript

import "strings"

// oversizedFactor marks a single segment as large enough to stand alone as
// its own scene rather than merging with neighbours.
const oversizedFactor = 1.5

// chunkSlack allows a chunk to run slightly past the word budget before it
// is finalized, so short trailing segments are not orphaned.
const chunkSlack = 5

// Split chunks timed segments into scenes of roughly wordBudget words,
// respecting segment boundaries. Segment text is never split mid-segment: a
// segment either joins the current chunk or starts the next one, and a
// segment at least 1.5x the budget becomes its own scene. Empty segments are
// skipped. The returned scenes carry no prompts; prompt generation happens
// during planning.
func Split(segments []Segment, wordBudget int) []Scene {
	if wordBudget <= 0 || len(segments) == 0 {
		return nil
	}

	var scenes []Scene
	var chunk []string
	chunkWords := 0
	chunkStart := -1.0
	chunkEnd := -1.0

	flush := func() {
		if len(chunk) == 0 {
			return
		}
		scenes = append(scenes, Scene{
			Index: len(scenes),
			Text:  strings.Join(chunk, " "),
			Start: chunkStart,
			End:   chunkEnd,
		})
		chunk = nil
		chunkWords = 0
		chunkStart = -1.0
		chunkEnd = -1.0
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		words := len(strings.Fields(text))

		if chunkWords == 0 && float64(words) >= float64(wordBudget)*oversizedFactor {
			scenes = append(scenes, Scene{
				Index: len(scenes),
				Text:  text,
				Start: seg.Start,
				End:   seg.End,
			})
			continue
		}

		if chunkWords > 0 && chunkWords+words > wordBudget+chunkSlack {
			flush()
		}
		if chunkStart < 0 {
			chunkStart = seg.Start
		}
		chunk = append(chunk, text)
		chunkWords += words
		chunkEnd = seg.End
	}
	flush()

	return scenes
}
