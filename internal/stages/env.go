// Package stages implements the pipeline stage handlers: download,
// transcribe, translate, scene planning, image synthesis, and video
// composition. Each handler commits its output through the artifact store and
// records the commit in the queue database.
package stages

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/artifacts"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
)

// Env bundles the shared dependencies every stage handler needs.
type Env struct {
	Queue  *queue.Store
	Files  *artifacts.Store
	Logger *slog.Logger
}

func (e *Env) logger(component string) *slog.Logger {
	return logging.NewComponentLogger(e.Logger, component)
}

// nextVersion reserves the filename version for the stage's next artifact.
// A single claim holder serializes writes per job and stage, so the reserved
// number matches what RecordArtifact will assign.
func (e *Env) nextVersion(ctx context.Context, jobID, stageName, kind string) (int, error) {
	latest, err := e.Queue.LatestArtifact(ctx, jobID, stageName, kind)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	return latest.Version + 1, nil
}

// loadLatestJSON reads the newest committed artifact of a kind into v.
// Returns false without error when the stage has not committed one.
func (e *Env) loadLatestJSON(ctx context.Context, jobID, stageName, kind string, v any) (bool, error) {
	latest, err := e.Queue.LatestArtifact(ctx, jobID, stageName, kind)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	if err := artifacts.ReadJSON(latest.Path, v); err != nil {
		return false, err
	}
	return true, nil
}

// requireArtifact loads a predecessor's latest artifact and tags a missing one
// as fatal: the planner never schedules a stage before its inputs commit, so
// absence means the job state is corrupt.
func (e *Env) requireArtifact(ctx context.Context, jobID, stageName, kind string) (*queue.Artifact, error) {
	latest, err := e.Queue.LatestArtifact(ctx, jobID, stageName, kind)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, "load artifact", kind, err)
	}
	if latest == nil {
		return nil, services.Wrap(services.ErrFatal, stageName, "load artifact", fmt.Sprintf("missing %s artifact", kind), nil)
	}
	return latest, nil
}

func versionedName(base string, version int, ext string) string {
	return fmt.Sprintf("%s.v%d.%s", base, version, ext)
}
