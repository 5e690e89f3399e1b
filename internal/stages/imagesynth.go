package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/services/imagegen"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
)

// stylePrefixes maps the submission image style to the prompt prefix it adds.
// Unknown styles fall through to no prefix.
var stylePrefixes = map[string]string{
	"photorealistic": "A photorealistic, high-detail image of: ",
	"cartoon":        "A vibrant cartoon-style illustration of: ",
	"abstract":       "An abstract artistic interpretation of: ",
	"pixel_art":      "A retro pixel art scene of: ",
	"line_art":       "A minimalist black-and-white line art drawing of: ",
	"fantasy":        "An epic fantasy digital painting of: ",
	"anime":          "An anime-style illustration of: ",
}

// ImageManifest is the image synthesis artifact: one entry per scene with the
// final prompt and the committed image path.
type ImageManifest struct {
	Scenes []SceneImage `json:"scenes"`
}

// SceneImage records one generated scene image.
type SceneImage struct {
	Index  int     `json:"index"`
	Prompt string  `json:"prompt"`
	Path   string  `json:"path"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

// ImageSynth generates one image per scene from the reviewed scene plan.
type ImageSynth struct {
	env         *Env
	client      *imagegen.Client
	concurrency int
	logger      *slog.Logger
}

// NewImageSynth constructs the image synthesis stage handler.
func NewImageSynth(env *Env, client *imagegen.Client, concurrency int) *ImageSynth {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &ImageSynth{env: env, client: client, concurrency: concurrency, logger: env.logger("synthesize_images")}
}

func (s *ImageSynth) Name() string { return stage.NameImageSynth }

func (s *ImageSynth) Prepare(ctx context.Context, job *queue.Job) error {
	_, err := s.loadPlan(ctx, job)
	return err
}

// loadPlan prefers the user-edited spec stored on the job, falling back to
// the committed scene plan artifact when the job was never parked for review.
func (s *ImageSynth) loadPlan(ctx context.Context, job *queue.Job) (*queue.EditableSpec, error) {
	plan, err := job.EditableSpec()
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, s.Name(), "decode editable spec", "", err)
	}
	if plan == nil {
		plan = &queue.EditableSpec{}
		found, err := s.env.loadLatestJSON(ctx, job.ID, stage.NameScenePlan, stage.KindScenePlan, plan)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, s.Name(), "load scene plan", "", err)
		}
		if !found {
			return nil, services.Wrap(services.ErrFatal, s.Name(), "load scene plan", "missing scene plan artifact", nil)
		}
	}
	if len(plan.Scenes) == 0 {
		return nil, services.Wrap(services.ErrValidation, s.Name(), "validate plan", "scene plan has no scenes", nil)
	}
	return plan, nil
}

func (s *ImageSynth) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	plan, err := s.loadPlan(ctx, job)
	if err != nil {
		return stage.Continue, err
	}

	version, err := s.env.nextVersion(ctx, job.ID, s.Name(), stage.KindImages)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, s.Name(), "artifact version", "", err)
	}

	s.logger.Info("generating scene images", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("scenes", len(plan.Scenes)),
		logging.Int("concurrency", s.concurrency),
	)...)

	manifest := ImageManifest{Scenes: make([]SceneImage, len(plan.Scenes))}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, scene := range plan.Scenes {
		i, scene := i, scene
		group.Go(func() error {
			prompt := BuildImagePrompt(scene, plan)
			data, err := s.client.Generate(groupCtx, prompt)
			if err != nil {
				return services.Wrap(nil, s.Name(), "generate image", fmt.Sprintf("scene %d", scene.Index), err)
			}
			name := fmt.Sprintf("scene_%03d.v%d.png", scene.Index, version)
			path, err := s.env.Files.WriteFile(job.ID, s.Name(), name, data)
			if err != nil {
				return services.Wrap(services.ErrResource, s.Name(), "write image", name, err)
			}
			manifest.Scenes[i] = SceneImage{
				Index:  scene.Index,
				Prompt: prompt,
				Path:   path,
				Start:  scene.Start,
				End:    scene.End,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return stage.Continue, err
	}

	path, err := s.env.Files.WriteJSON(job.ID, s.Name(), versionedName("image_manifest", version, "json"), manifest)
	if err != nil {
		return stage.Continue, services.Wrap(services.ErrResource, s.Name(), "write manifest", "", err)
	}
	if _, err := s.env.Queue.RecordArtifact(ctx, job.ID, job.ClaimOwner, s.Name(), stage.KindImages, path); err != nil {
		return stage.Continue, services.Wrap(services.ErrTransient, s.Name(), "record artifact", "", err)
	}

	s.logger.Info("scene images committed", logging.Args(
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("images", len(manifest.Scenes)),
	)...)
	return stage.Continue, nil
}

// BuildImagePrompt assembles the final generation prompt for a scene: style
// prefix, scene prompt, positive keywords, artist influences, and an
// avoidance clause for negative keywords.
func BuildImagePrompt(scene transcript.Scene, plan *queue.EditableSpec) string {
	base := strings.TrimSpace(scene.Prompt)
	if base == "" {
		base = strings.TrimSpace(scene.Text)
	}

	var b strings.Builder
	if prefix, ok := stylePrefixes[strings.ToLower(strings.TrimSpace(plan.ImageStyle))]; ok {
		b.WriteString(prefix)
	}
	b.WriteString(base)
	if keywords := strings.TrimSpace(plan.PositiveKeywords); keywords != "" {
		b.WriteString(", ")
		b.WriteString(keywords)
	}
	if artists := strings.TrimSpace(plan.ArtistInfluences); artists != "" {
		b.WriteString(", art by ")
		b.WriteString(artists)
	}
	if negative := strings.TrimSpace(plan.NegativeKeywords); negative != "" {
		b.WriteString(". Avoid: ")
		b.WriteString(negative)
	}
	return b.String()
}

func (s *ImageSynth) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(s.Name(), err.Error())
	}
	return stage.Healthy(s.Name())
}
