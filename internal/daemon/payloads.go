package daemon

import (
	"encoding/json"
	"time"

	"reelforge/internal/queue"
)

// JobPayload is the wire representation of a queue job.
type JobPayload struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	CurrentStage string              `json:"current_stage,omitempty"`
	InputSpec    *queue.InputSpec    `json:"input_spec,omitempty"`
	EditableSpec *queue.EditableSpec `json:"editable_spec,omitempty"`
	Attempts     map[string]int      `json:"attempts,omitempty"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ArtifactPayload is the wire representation of a committed artifact.
type ArtifactPayload struct {
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Version   int       `json:"version"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobPayload `json:"job"`
}

// JobDetailResponse wraps a job with its artifact history.
type JobDetailResponse struct {
	Job       JobPayload        `json:"job"`
	Artifacts []ArtifactPayload `json:"artifacts"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobPayload `json:"jobs"`
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	Running      bool                 `json:"running"`
	QueueDBPath  string               `json:"queue_db_path"`
	LockFilePath string               `json:"lock_file_path"`
	Queue        QueueCountsPayload   `json:"queue"`
	Stages       []StageHealthPayload `json:"stages"`
}

// QueueCountsPayload breaks down jobs by status.
type QueueCountsPayload struct {
	Total         int `json:"total"`
	Queued        int `json:"queued"`
	Running       int `json:"running"`
	AwaitingInput int `json:"awaiting_input"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Cancelled     int `json:"cancelled"`
}

// StageHealthPayload reports one stage's readiness.
type StageHealthPayload struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// UpdateScenesRequest carries a scene plan edit.
type UpdateScenesRequest struct {
	Scenes           json.RawMessage `json:"scenes"`
	ImageStyle       string          `json:"image_style"`
	PositiveKeywords string          `json:"positive_keywords"`
	NegativeKeywords string          `json:"negative_keywords"`
	ArtistInfluences string          `json:"artist_influences"`
}

func jobPayload(job *queue.Job) JobPayload {
	payload := JobPayload{
		ID:           job.ID,
		Status:       string(job.Status),
		CurrentStage: job.CurrentStage,
		Error:        job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if spec, err := job.InputSpec(); err == nil {
		payload.InputSpec = &spec
	}
	if spec, err := job.EditableSpec(); err == nil && spec != nil {
		payload.EditableSpec = spec
	}
	if attempts := job.Attempts(); len(attempts) > 0 {
		payload.Attempts = attempts
	}
	return payload
}

func artifactPayloads(artifacts []*queue.Artifact) []ArtifactPayload {
	out := make([]ArtifactPayload, 0, len(artifacts))
	for _, artifact := range artifacts {
		out = append(out, ArtifactPayload{
			Stage:     artifact.Stage,
			Kind:      artifact.Kind,
			Version:   artifact.Version,
			Path:      artifact.Path,
			CreatedAt: artifact.CreatedAt,
		})
	}
	return out
}
