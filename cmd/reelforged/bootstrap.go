package main

import (
	"log/slog"

	"reelforge/internal/artifacts"
	"reelforge/internal/config"
	"reelforge/internal/media/compose"
	"reelforge/internal/queue"
	"reelforge/internal/services/imagegen"
	"reelforge/internal/services/llm"
	"reelforge/internal/services/whisper"
	"reelforge/internal/services/ytdlp"
	"reelforge/internal/stage"
	"reelforge/internal/stages"
)

// buildStages wires the six pipeline stages with their external services.
func buildStages(cfg *config.Config, store *queue.Store, logger *slog.Logger) []stage.Handler {
	env := &stages.Env{
		Queue:  store,
		Files:  artifacts.NewStore(cfg.ArtifactRoot()),
		Logger: logger,
	}

	downloader := ytdlp.NewService(ytdlp.Config{
		Binary:         cfg.Download.Binary,
		AudioFormat:    cfg.Download.AudioFormat,
		MaxDurationMin: cfg.Download.MaxDurationMin,
	})
	transcriber := whisper.NewService(whisper.Config{
		Binary: cfg.Transcribe.Binary,
		Model:  cfg.Transcribe.Model,
	})

	llmCfg := cfg.GetLLM()
	planner := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	imager := imagegen.NewClient(imagegen.Config{
		APIKey:         cfg.Images.APIKey,
		BaseURL:        cfg.Images.BaseURL,
		Model:          cfg.Images.Model,
		Width:          cfg.Images.Width,
		Height:         cfg.Images.Height,
		TimeoutSeconds: cfg.Images.TimeoutSeconds,
	})
	renderer := compose.NewService(compose.Config{
		FFmpegBinary: cfg.Video.FFmpegBinary,
		FrameRate:    cfg.Video.FrameRate,
		Width:        cfg.Images.Width,
		Height:       cfg.Images.Height,
	})

	return []stage.Handler{
		stages.NewDownload(env, downloader, cfg.Download.AudioFormat),
		stages.NewTranscribe(env, transcriber),
		stages.NewTranslate(env, planner),
		stages.NewScenePlan(env, planner, cfg.Scenes.WordBudget, cfg.Scenes.MaxScenes),
		stages.NewImageSynth(env, imager, cfg.Images.Concurrency),
		stages.NewComposeVideo(env, renderer, cfg.Video.FFprobeBinary, cfg.Images.Width, cfg.Images.Height),
	}
}
