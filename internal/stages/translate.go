package stages

import (
	"context"
	"log/slog"

	"reelforge/internal/artifacts"
	langpkg "reelforge/internal/language"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/services/llm"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// translateBatchSize bounds how many segments go into a single LLM request.
const translateBatchSize = 50

// Translate produces an English transcript track when the subtitle mode asks
// for one and the episode is not already in English. When translation is not
// needed it commits a skipped marker so the planner can advance.
type Translate struct {
	env    *Env
	client *llm.Client
	logger *slog.Logger
}

// NewTranslate constructs the translation stage handler.
func NewTranslate(env *Env, client *llm.Client) *Translate {
	return &Translate{env: env, client: client, logger: env.logger("translate")}
}

func (t *Translate) Name() string { return stage.NameTranslate }

func (t *Translate) Prepare(ctx context.Context, job *queue.Job) error {
	_, err := t.env.requireArtifact(ctx, job.ID, stage.NameTranscribe, stage.KindTranscript)
	return err
}

func (t *Translate) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	spec, err := job.InputSpec()
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, t.Name(), "decode input spec", "", err)
	}
	source, err := t.env.requireArtifact(ctx, job.ID, stage.NameTranscribe, stage.KindTranscript)
	if err != nil {
		return stage.Continue, err
	}
	var full transcript.Transcript
	if err := artifacts.ReadJSON(source.Path, &full); err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, t.Name(), "decode transcript", "", err)
	}

	result := transcript.Translated{
		SourceLanguage: full.Language,
		TargetLanguage: "en",
	}
	if needsTranslation(spec.SubtitleMode, full.Language) {
		segments, err := t.translateSegments(ctx, full)
		if err != nil {
			return stage.Continue, err
		}
		result.Segments = segments
	} else {
		result.Skipped = true
	}

	version, err := t.env.nextVersion(ctx, job.ID, t.Name(), stage.KindTranslated)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, t.Name(), "artifact version", "", err)
	}
	path, err := t.env.Files.WriteJSON(job.ID, t.Name(), versionedName("translated", version, "json"), result)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, t.Name(), "write translation", "", err)
	}
	if _, err := t.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, t.Name(), stage.KindTranslated, path); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, t.Name(), "record artifact", "", err)
	}

	t.logger.Info("translation committed", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.Bool("skipped", result.Skipped),
		logging.Int("segments", len(result.Segments)),
	)...)
	return stage.Continue, nil
}

// needsTranslation reports whether an English track must be produced.
func needsTranslation(mode queue.SubtitleMode, language string) bool {
	if mode != queue.SubtitlesEnglish && mode != queue.SubtitlesBoth {
		return false
	}
	return !langpkg.Same(language, "en")
}

// translateSegments translates batch by batch, preserving segment timing.
// A segment whose batch fails or whose translation comes back empty keeps its
// original text, so one bad batch never fails the whole stage.
func (t *Translate) translateSegments(ctx context.Context, full transcript.Transcript) ([]transcript.Segment, error) {
	out := make([]transcript.Segment, len(full.Segments))
	copy(out, full.Segments)

	for start := 0; start < len(out); start += translateBatchSize {
		end := start + translateBatchSize
		if end > len(out) {
			end = len(out)
		}
		texts := make([]string, 0, end-start)
		for _, seg := range out[start:end] {
			texts = append(texts, seg.Text)
		}
		translated, err := t.client.TranslateTexts(ctx, full.Language, "en", texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, services.Wrap(services.ErrTransient, t.Name(), "translate batch", "", err)
			}
			t.logger.Warn("batch translation failed; keeping original text", logging.Args(
				logging.Int("segment_start", start),
				logging.Int("segment_end", end),
				logging.Error(err),
			)...)
			continue
		}
		for i, text := range translated {
			if text != "" {
				out[start+i].Text = text
			}
		}
	}
	return out, nil
}

func (t *Translate) HealthCheck(ctx context.Context) stage.Health {
	if err := t.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(t.Name(), err.Error())
	}
	return stage.Healthy(t.Name())
}
