// Package api exposes the job operations shared by the HTTP server and the
// CLI: submit, inspect, edit scenes, resume, cancel, retry.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
)

// JobService validates requests and applies them to the queue store.
type JobService struct {
	store  *queue.Store
	logger *slog.Logger
}

// NewJobService constructs a JobService.
func NewJobService(store *queue.Store, logger *slog.Logger) *JobService {
	return &JobService{store: store, logger: logging.NewComponentLogger(logger, "api")}
}

// SubmitRequest carries the raw submission fields before validation.
type SubmitRequest struct {
	SourceURL        string `json:"source_url"`
	DurationSeconds  int    `json:"duration_seconds"`
	SubtitleMode     string `json:"subtitle_mode"`
	AspectRatio      string `json:"aspect_ratio"`
	ImageStyle       string `json:"image_style"`
	PositiveKeywords string `json:"positive_keywords"`
	NegativeKeywords string `json:"negative_keywords"`
	ArtistInfluences string `json:"artist_influences"`
}

// Submit validates the request and enqueues a new job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*queue.Job, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "source_url is required", nil)
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "source_url must be an absolute URL", err)
	}
	mode, ok := queue.ParseSubtitleMode(req.SubtitleMode)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "unknown subtitle_mode "+req.SubtitleMode, nil)
	}
	ratio, ok := queue.ParseAspectRatio(req.AspectRatio)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "unknown aspect_ratio "+req.AspectRatio, nil)
	}
	if req.DurationSeconds < 0 {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "duration_seconds must not be negative", nil)
	}

	job, err := s.store.NewJob(ctx, queue.InputSpec{
		SourceURL:        sourceURL,
		DurationSeconds:  req.DurationSeconds,
		SubtitleMode:     mode,
		AspectRatio:      ratio,
		ImageStyle:       strings.TrimSpace(req.ImageStyle),
		PositiveKeywords: strings.TrimSpace(req.PositiveKeywords),
		NegativeKeywords: strings.TrimSpace(req.NegativeKeywords),
		ArtistInfluences: strings.TrimSpace(req.ArtistInfluences),
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	s.logger.Info("job submitted", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_url", sourceURL),
	)...)
	return job, nil
}

// JobStatus bundles a job with its committed artifacts.
type JobStatus struct {
	Job       *queue.Job
	Artifacts []*queue.Artifact
}

// Status returns a job and its artifact history.
func (s *JobService) Status(ctx context.Context, id string) (*JobStatus, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.store.ListArtifacts(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &JobStatus{Job: job, Artifacts: artifacts}, nil
}

// List returns jobs filtered to the given statuses, or all jobs when empty.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return s.store.List(ctx, statuses...)
}

// Health returns aggregated queue counts.
func (s *JobService) Health(ctx context.Context) (queue.HealthSummary, error) {
	return s.store.Health(ctx)
}

// UpdateScenes replaces the editable spec of a parked job. The scene count
// must match the committed plan and scene timing is never editable; only
// text, prompts, and the style fields change.
func (s *JobService) UpdateScenes(ctx context.Context, id string, update queue.EditableSpec) (*queue.Job, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != queue.StatusAwaitingInput {
		return nil, services.Wrap(services.ErrValidation, "", "update scenes", "job is not awaiting input", nil)
	}
	current, err := job.EditableSpec()
	if err != nil || current == nil {
		return nil, services.Wrap(services.ErrValidation, "", "update scenes", "job has no editable spec", err)
	}
	if len(update.Scenes) != len(current.Scenes) {
		return nil, services.Wrap(services.ErrValidation, "", "update scenes",
			fmt.Sprintf("scene count must stay %d, got %d", len(current.Scenes), len(update.Scenes)), nil)
	}
	merged := *current
	merged.ImageStyle = update.ImageStyle
	merged.PositiveKeywords = update.PositiveKeywords
	merged.NegativeKeywords = update.NegativeKeywords
	merged.ArtistInfluences = update.ArtistInfluences
	for i := range merged.Scenes {
		if text := strings.TrimSpace(update.Scenes[i].Text); text != "" {
			merged.Scenes[i].Text = text
		}
		if prompt := strings.TrimSpace(update.Scenes[i].Prompt); prompt != "" {
			merged.Scenes[i].Prompt = prompt
		}
	}

	ok, err := s.store.UpdateEditableSpec(ctx, job.ID, merged)
	if err != nil {
		return nil, fmt.Errorf("update scenes: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "update scenes", "job left the awaiting_input state", nil)
	}
	return s.lookup(ctx, id)
}

// Resume moves a parked job back into processing.
func (s *JobService) Resume(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Resume(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "resume", "job is not awaiting input", nil)
	}
	s.logger.Info("job resumed", logging.Args(logging.String(logging.FieldJobID, job.ID))...)
	return s.lookup(ctx, id)
}

// Cancel aborts a job from any non-terminal state.
func (s *JobService) Cancel(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Cancel(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "cancel", "job already reached a terminal state", nil)
	}
	s.logger.Info("job cancelled", logging.Args(logging.String(logging.FieldJobID, job.ID))...)
	return s.lookup(ctx, id)
}

// Retry requeues a failed job. Attempt history is kept so chronic failures
// still hit the ceiling.
func (s *JobService) Retry(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.RetryFailed(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("retry: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "retry", "only failed jobs can be retried", nil)
	}
	s.logger.Info("job requeued", logging.Args(logging.String(logging.FieldJobID, job.ID))...)
	return s.lookup(ctx, id)
}

// ErrNotFound marks lookups for unknown job IDs.
var ErrNotFound = fmt.Errorf("job not found")

func (s *JobService) lookup(ctx context.Context, id string) (*queue.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "", "lookup", "job id is required", nil)
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}
