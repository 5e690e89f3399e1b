package queue

import (
	"encoding/json"
	"strings"
	"time"

	"reelforge/internal/transcript"
)

// Status represents the lifecycle of a reel job.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_input"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusAwaitingInput,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// SubtitleMode selects which subtitle tracks are burned into the final reel.
type SubtitleMode string

const (
	SubtitlesNone     SubtitleMode = "none"
	SubtitlesOriginal SubtitleMode = "orig"
	SubtitlesEnglish  SubtitleMode = "en"
	SubtitlesBoth     SubtitleMode = "both"
)

// ParseSubtitleMode validates a subtitle mode string. Empty input defaults to
// no subtitles.
func ParseSubtitleMode(value string) (SubtitleMode, bool) {
	mode := SubtitleMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return SubtitlesNone, true
	case SubtitlesNone, SubtitlesOriginal, SubtitlesEnglish, SubtitlesBoth:
		return mode, true
	default:
		return "", false
	}
}

// AspectRatio selects the output video geometry.
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
	AspectSquare    AspectRatio = "1:1"
)

// ParseAspectRatio validates an aspect ratio string. Empty input defaults to
// portrait, the native reel format.
func ParseAspectRatio(value string) (AspectRatio, bool) {
	ratio := AspectRatio(strings.TrimSpace(value))
	switch ratio {
	case "":
		return AspectPortrait, true
	case AspectPortrait, AspectLandscape, AspectSquare:
		return ratio, true
	default:
		return "", false
	}
}

// InputSpec captures the immutable submission parameters of a job.
type InputSpec struct {
	SourceURL        string       `json:"source_url"`
	DurationSeconds  int          `json:"duration_seconds,omitempty"`
	SubtitleMode     SubtitleMode `json:"subtitle_mode"`
	AspectRatio      AspectRatio  `json:"aspect_ratio"`
	ImageStyle       string       `json:"image_style,omitempty"`
	PositiveKeywords string       `json:"positive_keywords,omitempty"`
	NegativeKeywords string       `json:"negative_keywords,omitempty"`
	ArtistInfluences string       `json:"artist_influences,omitempty"`
}

// EditableSpec is the user-editable portion of a job, produced by scene
// planning and consumed by image synthesis after the user resumes the job.
type EditableSpec struct {
	Scenes           []transcript.Scene `json:"scenes"`
	ImageStyle       string             `json:"image_style,omitempty"`
	PositiveKeywords string             `json:"positive_keywords,omitempty"`
	NegativeKeywords string             `json:"negative_keywords,omitempty"`
	ArtistInfluences string             `json:"artist_influences,omitempty"`
}

// Job represents a reel pipeline job persisted in SQLite.
type Job struct {
	ID               string
	Status           Status
	CurrentStage     string
	InputSpecJSON    string
	EditableSpecJSON string
	AttemptsJSON     string
	ErrorMessage     string
	ClaimOwner       string
	LeaseExpiresAt   *time.Time
	LastHeartbeat    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InputSpec decodes the stored submission parameters.
func (j *Job) InputSpec() (InputSpec, error) {
	var spec InputSpec
	if strings.TrimSpace(j.InputSpecJSON) == "" {
		return spec, nil
	}
	err := json.Unmarshal([]byte(j.InputSpecJSON), &spec)
	return spec, err
}

// EditableSpec decodes the stored editable spec, when present.
func (j *Job) EditableSpec() (*EditableSpec, error) {
	if strings.TrimSpace(j.EditableSpecJSON) == "" {
		return nil, nil
	}
	var spec EditableSpec
	if err := json.Unmarshal([]byte(j.EditableSpecJSON), &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Attempts decodes the per-stage attempt counters.
func (j *Job) Attempts() map[string]int {
	attempts := make(map[string]int)
	if strings.TrimSpace(j.AttemptsJSON) != "" {
		_ = json.Unmarshal([]byte(j.AttemptsJSON), &attempts)
	}
	return attempts
}

// SetAttempts encodes per-stage attempt counters back onto the job.
func (j *Job) SetAttempts(attempts map[string]int) {
	if len(attempts) == 0 {
		j.AttemptsJSON = ""
		return
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return
	}
	j.AttemptsJSON = string(data)
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total         int
	Queued        int
	Running       int
	AwaitingInput int
	Completed     int
	Failed        int
	Cancelled     int
}

// Artifact is one immutable, versioned output of a stage. A row exists only
// for committed artifacts; in-progress files are never recorded.
type Artifact struct {
	ID        int64
	JobID     string
	Stage     string
	Kind      string
	Version   int
	Path      string
	CreatedAt time.Time
}
