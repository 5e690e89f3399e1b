// Package transcript defines the transcript data model shared across stages
// and the scene chunking rules that turn timed segments into reel scenes.
package transcript

import "strings"

// Segment is a single timed span of speech.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the output of the transcription stage.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Translated holds the translation stage output. Segments keep their original
// timing; only text changes. Segments that failed translation retain their
// original text.
type Translated struct {
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	Skipped        bool      `json:"skipped,omitempty"`
	Segments       []Segment `json:"segments"`
}

// Scene is one chunk of transcript text paired with an image prompt. The
// prompt and text are user-editable between planning and image synthesis.
type Scene struct {
	Index  int     `json:"index"`
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Prompt string  `json:"prompt"`
}

// WordCount returns the whitespace-delimited word count of a segment.
func (s Segment) WordCount() int {
	return len(strings.Fields(s.Text))
}

// Duration returns the total speech duration covered by the transcript.
func (t Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}
