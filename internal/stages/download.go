package stages

import (
	"context"
	"log/slog"
	"strings"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/services/ytdlp"
	"reelforge/internal/stage"
)

// Download fetches the episode audio for a job.
type Download struct {
	env    *Env
	svc    *ytdlp.Service
	format string
	logger *slog.Logger
}

// NewDownload constructs the download stage handler.
func NewDownload(env *Env, svc *ytdlp.Service, audioFormat string) *Download {
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	return &Download{env: env, svc: svc, format: audioFormat, logger: env.logger("download")}
}

func (d *Download) Name() string { return stage.NameDownload }

func (d *Download) Prepare(ctx context.Context, job *queue.Job) error {
	spec, err := job.InputSpec()
	if err != nil {
		return services.Wrap(services.ErrFatal, d.Name(), "decode input spec", "", err)
	}
	if strings.TrimSpace(spec.SourceURL) == "" {
		return services.Wrap(services.ErrValidation, d.Name(), "validate", "source url required", nil)
	}
	if _, ok := queue.ParseSubtitleMode(string(spec.SubtitleMode)); !ok {
		return services.Wrap(services.ErrValidation, d.Name(), "validate", "unknown subtitle mode "+string(spec.SubtitleMode), nil)
	}
	if _, ok := queue.ParseAspectRatio(string(spec.AspectRatio)); !ok {
		return services.Wrap(services.ErrValidation, d.Name(), "validate", "unknown aspect ratio "+string(spec.AspectRatio), nil)
	}
	return nil
}

func (d *Download) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	spec, err := job.InputSpec()
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, d.Name(), "decode input spec", "", err)
	}

	scratch, err := d.env.Files.ScratchDir(job.ID, d.Name())
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, d.Name(), "scratch dir", "", err)
	}

	d.logger.Info("downloading episode audio", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_url", spec.SourceURL),
	)...)

	audioPath, err := d.svc.DownloadAudio(ctx, spec.SourceURL, scratch, spec.DurationSeconds)
	if err != nil {
		if services.Classify(err) == services.KindValidation {
			return stage.Continue, err
		}
		return stage.Continue, services.Wrap(services.ErrTransient, d.Name(), "fetch audio", spec.SourceURL, err)
	}

	version, err := d.env.nextVersion(ctx, job.ID, d.Name(), stage.KindAudio)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, d.Name(), "artifact version", "", err)
	}
	final, err := d.env.Files.Promote(job.ID, d.Name(), versionedName("audio", version, d.format), audioPath)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, d.Name(), "commit audio", "", err)
	}
	if _, err := d.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, d.Name(), stage.KindAudio, final); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, d.Name(), "record artifact", "", err)
	}

	d.logger.Info("audio committed", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("path", final),
	)...)
	return stage.Continue, nil
}

func (d *Download) HealthCheck(ctx context.Context) stage.Health {
	if err := d.svc.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(d.Name(), err.Error())
	}
	return stage.Healthy(d.Name())
}
