package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"reelforge/internal/artifacts"
	"reelforge/internal/logging"
	"reelforge/internal/media/compose"
	"reelforge/internal/media/ffprobe"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// ComposeVideo stitches the committed scene images and episode audio into the
// final reel, burning in subtitles when the job asks for them.
type ComposeVideo struct {
	env           *Env
	svc           *compose.Service
	ffprobeBinary string
	baseWidth     int
	baseHeight    int
	logger        *slog.Logger
}

// NewComposeVideo constructs the composition stage handler. baseWidth and
// baseHeight describe the portrait frame; other aspect ratios derive from it.
func NewComposeVideo(env *Env, svc *compose.Service, ffprobeBinary string, baseWidth, baseHeight int) *ComposeVideo {
	if baseWidth <= 0 {
		baseWidth = 1080
	}
	if baseHeight <= 0 {
		baseHeight = 1920
	}
	return &ComposeVideo{
		env:           env,
		svc:           svc,
		ffprobeBinary: ffprobeBinary,
		baseWidth:     baseWidth,
		baseHeight:    baseHeight,
		logger:        env.logger("compose_video"),
	}
}

func (c *ComposeVideo) Name() string { return stage.NameCompose }

func (c *ComposeVideo) Prepare(ctx context.Context, job *queue.Job) error {
	if _, err := c.env.requireArtifact(ctx, job.ID, stage.NameDownload, stage.KindAudio); err != nil {
		return err
	}
	_, err := c.env.requireArtifact(ctx, job.ID, stage.NameImageSynth, stage.KindImages)
	return err
}

func (c *ComposeVideo) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	spec, err := job.InputSpec()
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, c.Name(), "decode input spec", "", err)
	}
	audio, err := c.env.requireArtifact(ctx, job.ID, stage.NameDownload, stage.KindAudio)
	if err != nil {
		return stage.Continue, err
	}
	manifestArtifact, err := c.env.requireArtifact(ctx, job.ID, stage.NameImageSynth, stage.KindImages)
	if err != nil {
		return stage.Continue, err
	}
	var manifest ImageManifest
	if err := artifacts.ReadJSON(manifestArtifact.Path, &manifest); err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, c.Name(), "decode image manifest", "", err)
	}
	if len(manifest.Scenes) == 0 {
		return stage.Continue, services.Wrap(services.ErrFatal, c.Name(), "validate manifest", "manifest has no scenes", nil)
	}

	scratch, err := c.env.Files.ScratchDir(job.ID, c.Name())
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, c.Name(), "scratch dir", "", err)
	}

	slides := buildSlides(manifest, c.audioDuration(ctx, audio.Path))

	subtitlePath, err := c.writeSubtitles(ctx, job, spec.SubtitleMode, scratch)
	if err != nil {
		return stage.Continue, err
	}

	mode, _ := queue.ParseSubtitleMode(string(spec.SubtitleMode))
	ratio, _ := queue.ParseAspectRatio(string(spec.AspectRatio))
	width, height := frameDims(ratio, c.baseWidth, c.baseHeight)

	version, err := c.env.nextVersion(ctx, job.ID, c.Name(), stage.KindReel)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, c.Name(), "artifact version", "", err)
	}
	outputName := versionedName("reel", version, "mp4")
	scratchOutput := filepath.Join(scratch, outputName)

	c.logger.Info("rendering reel", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("slides", len(slides)),
		logging.String("subtitle_mode", string(mode)),
		logging.String("aspect_ratio", string(ratio)),
	)...)

	err = c.svc.Render(ctx, compose.Request{
		Slides:       slides,
		AudioPath:    audio.Path,
		SubtitlePath: subtitlePath,
		OutputPath:   scratchOutput,
		WorkDir:      scratch,
		Width:        width,
		Height:       height,
	})
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, c.Name(), "render", "", err)
	}

	final, err := c.env.Files.Promote(job.ID, c.Name(), outputName, scratchOutput)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, c.Name(), "commit reel", "", err)
	}
	if _, err := c.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, c.Name(), stage.KindReel, final); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, c.Name(), "record artifact", "", err)
	}

	// The reel row marks the stage complete; the subtitle file rides along as
	// a secondary artifact when the mode produced one.
	if subtitlePath != "" {
		srtFinal, err := c.env.Files.Promote(job.ID, c.Name(), versionedName("subtitles", version, "srt"), subtitlePath)
		if err != nil {
			return stage.Continue, services.Wrap(services.ErrResource, c.Name(), "commit subtitles", "", err)
		}
		if _, err := c.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, c.Name(), stage.KindSubtitles, srtFinal); err != nil {
			return stage.Continue, services.Wrap(services.ErrTransient, c.Name(), "record subtitles", "", err)
		}
	}

	c.logger.Info("reel committed", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.String("path", final),
	)...)
	return stage.Continue, nil
}

// audioDuration probes the committed audio; 0 when the probe fails, which
// leaves slide timing purely transcript-driven.
func (c *ComposeVideo) audioDuration(ctx context.Context, path string) float64 {
	result, err := ffprobe.Inspect(ctx, c.ffprobeBinary, path)
	if err != nil {
		c.logger.Warn("audio probe failed", logging.Args(logging.Error(err))...)
		return 0
	}
	return result.DurationSeconds()
}

// buildSlides turns manifest entries into timed slides. The final slide is
// stretched to cover the audio tail past the last scene boundary.
func buildSlides(manifest ImageManifest, audioDuration float64) []compose.Slide {
	slides := make([]compose.Slide, 0, len(manifest.Scenes))
	for _, scene := range manifest.Scenes {
		slides = append(slides, compose.Slide{
			ImagePath:       scene.Path,
			DurationSeconds: scene.End - scene.Start,
		})
	}
	last := manifest.Scenes[len(manifest.Scenes)-1]
	if audioDuration > last.End {
		slides[len(slides)-1].DurationSeconds += audioDuration - last.End
	}
	return slides
}

// writeSubtitles renders the SRT for the job's subtitle mode into the scratch
// directory. Returns "" when the mode needs no subtitles.
func (c *ComposeVideo) writeSubtitles(ctx context.Context, job *queue.Job, rawMode queue.SubtitleMode, scratch string) (string, error) {
	mode, ok := queue.ParseSubtitleMode(string(rawMode))
	if !ok || mode == queue.SubtitlesNone {
		return "", nil
	}

	var full transcript.Transcript
	found, err := c.env.loadLatestJSON(ctx, job.ID, stage.NameTranscribe, stage.KindTranscript, &full)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, c.Name(), "load transcript", "", err)
	}
	if !found {
		return "", services.Wrap(services.ErrFatal, c.Name(), "load transcript", "missing transcript artifact", nil)
	}

	var translated transcript.Translated
	haveTranslation := false
	found, err = c.env.loadLatestJSON(ctx, job.ID, stage.NameTranslate, stage.KindTranslated, &translated)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, c.Name(), "load translation", "", err)
	}
	if found && !translated.Skipped && len(translated.Segments) > 0 {
		haveTranslation = true
	}

	var srt string
	switch mode {
	case queue.SubtitlesOriginal:
		srt = transcript.RenderSRT(full.Segments, nil)
	case queue.SubtitlesEnglish:
		if haveTranslation {
			srt = transcript.RenderSRT(translated.Segments, nil)
		} else {
			srt = transcript.RenderSRT(full.Segments, nil)
		}
	case queue.SubtitlesBoth:
		if haveTranslation {
			srt = transcript.RenderSRT(full.Segments, translated.Segments)
		} else {
			srt = transcript.RenderSRT(full.Segments, nil)
		}
	}
	if srt == "" {
		return "", nil
	}

	path := filepath.Join(scratch, "subtitles.srt")
	if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
		return "", services.Wrap(services.ErrResource, c.Name(), "write subtitles", "", err)
	}
	return path, nil
}

// frameDims maps an aspect ratio to output dimensions derived from the
// portrait base frame.
func frameDims(ratio queue.AspectRatio, baseWidth, baseHeight int) (int, int) {
	switch ratio {
	case queue.AspectLandscape:
		return baseHeight, baseWidth
	case queue.AspectSquare:
		return baseWidth, baseWidth
	default:
		return baseWidth, baseHeight
	}
}

func (c *ComposeVideo) HealthCheck(ctx context.Context) stage.Health {
	if err := c.svc.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(c.Name(), err.Error())
	}
	return stage.Healthy(c.Name())
}
