package stages

import (
	"context"
	"log/slog"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/services/whisper"
	"reelforge/internal/stage"
)

// Transcribe turns the committed audio into a timed transcript.
type Transcribe struct {
	env    *Env
	svc    *whisper.Service
	logger *slog.Logger
}

// NewTranscribe constructs the transcription stage handler.
func NewTranscribe(env *Env, svc *whisper.Service) *Transcribe {
	return &Transcribe{env: env, svc: svc, logger: env.logger("transcribe")}
}

func (t *Transcribe) Name() string { return stage.NameTranscribe }

func (t *Transcribe) Prepare(ctx context.Context, job *queue.Job) error {
	_, err := t.env.requireArtifact(ctx, job.ID, stage.NameDownload, stage.KindAudio)
	return err
}

func (t *Transcribe) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	audio, err := t.env.requireArtifact(ctx, job.ID, stage.NameDownload, stage.KindAudio)
	if err != nil {
		return stage.Continue, err
	}
	scratch, err := t.env.Files.ScratchDir(job.ID, t.Name())
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, t.Name(), "scratch dir", "", err)
	}

	t.logger.Info("transcribing audio", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("model", t.svc.Model()),
	)...)

	result, err := t.svc.Transcribe(ctx, audio.Path, scratch)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, t.Name(), "run whisper", "", err)
	}

	version, err := t.env.nextVersion(ctx, job.ID, t.Name(), stage.KindTranscript)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, t.Name(), "artifact version", "", err)
	}
	path, err := t.env.Files.WriteJSON(job.ID, t.Name(), versionedName("transcript", version, "json"), result)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, t.Name(), "write transcript", "", err)
	}
	if _, err := t.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, t.Name(), stage.KindTranscript, path); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, t.Name(), "record artifact", "", err)
	}

	t.logger.Info("transcript committed", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("language", result.Language),
		logging.Int("segments", len(result.Segments)),
	)...)
	return stage.Continue, nil
}

func (t *Transcribe) HealthCheck(ctx context.Context) stage.Health {
	if err := t.svc.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(t.Name(), err.Error())
	}
	return stage.Healthy(t.Name())
}
