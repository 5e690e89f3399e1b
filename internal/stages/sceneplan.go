package stages

import (
	"context"
	"log/slog"

	"reelforge/internal/artifacts"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/services/llm"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// ScenePlan chunks the transcript into scenes, generates an image prompt per
// scene, and pauses the job so the user can review and edit the plan.
type ScenePlan struct {
	env        *Env
	client     *llm.Client
	wordBudget int
	maxScenes  int
	logger     *slog.Logger
}

// NewScenePlan constructs the scene planning stage handler.
func NewScenePlan(env *Env, client *llm.Client, wordBudget, maxScenes int) *ScenePlan {
	if wordBudget <= 0 {
		wordBudget = 20
	}
	if maxScenes <= 0 {
		maxScenes = 60
	}
	return &ScenePlan{
		env:        env,
		client:     client,
		wordBudget: wordBudget,
		maxScenes:  maxScenes,
		logger:     env.logger("scene_plan"),
	}
}

func (p *ScenePlan) Name() string { return stage.NameScenePlan }

func (p *ScenePlan) Prepare(ctx context.Context, job *queue.Job) error {
	_, err := p.env.requireArtifact(ctx, job.ID, stage.NameTranscribe, stage.KindTranscript)
	return err
}

func (p *ScenePlan) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	spec, err := job.InputSpec()
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, p.Name(), "decode input spec", "", err)
	}
	source, err := p.env.requireArtifact(ctx, job.ID, stage.NameTranscribe, stage.KindTranscript)
	if err != nil {
		return stage.Continue, err
	}
	var full transcript.Transcript
	if err := artifacts.ReadJSON(source.Path, &full); err != nil {
		return stage.Continue, services.Wrap(services.ErrFatal, p.Name(), "decode transcript", "", err)
	}

	scenes := p.chunk(full.Segments)
	if len(scenes) == 0 {
		return stage.Continue, services.Wrap(services.ErrValidation, p.Name(), "chunk transcript", "transcript has no usable speech", nil)
	}

	texts := make([]string, len(scenes))
	for i, scene := range scenes {
		texts[i] = scene.Text
	}
	prompts, err := p.client.GeneratePrompts(ctx, full.Language, texts)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, p.Name(), "generate prompts", "", err)
	}
	for i := range scenes {
		scenes[i].Prompt = prompts[i]
	}

	plan := queue.EditableSpec{
		Scenes:           scenes,
		ImageStyle:       spec.ImageStyle,
		PositiveKeywords: spec.PositiveKeywords,
		NegativeKeywords: spec.NegativeKeywords,
		ArtistInfluences: spec.ArtistInfluences,
	}

	version, err := p.env.nextVersion(ctx, job.ID, p.Name(), stage.KindScenePlan)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, p.Name(), "artifact version", "", err)
	}
	path, err := p.env.Files.WriteJSON(job.ID, p.Name(), versionedName("scene_plan", version, "json"), plan)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, p.Name(), "write scene plan", "", err)
	}
	if _, err := p.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, p.Name(), stage.KindScenePlan, path); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, p.Name(), "record artifact", "", err)
	}

	p.logger.Info("scene plan committed, awaiting review", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("scenes", len(scenes)),
	)...)
	return stage.Pause, nil
}

// chunk splits the segments with the configured word budget, widening the
// budget until the scene count fits under the ceiling.
func (p *ScenePlan) chunk(segments []transcript.Segment) []transcript.Scene {
	budget := p.wordBudget
	scenes := transcript.Split(segments, budget)
	for len(scenes) > p.maxScenes {
		budget = budget * 3 / 2
		wider := transcript.Split(segments, budget)
		if len(wider) >= len(scenes) {
			break
		}
		scenes = wider
	}
	return scenes
}

func (p *ScenePlan) HealthCheck(ctx context.Context) stage.Health {
	if err := p.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(p.Name(), err.Error())
	}
	return stage.Healthy(p.Name())
}
