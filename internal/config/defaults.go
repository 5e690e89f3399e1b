package config

const (
	defaultDataDir           = "~/.local/share/reelforge"
	defaultLogDir            = "~/.local/share/reelforge/logs"
	defaultLogRetentionDays  = 60
	defaultAPIBind           = "127.0.0.1:7602"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultWorkers           = 2
	defaultQueuePollInterval = 5
	defaultHeartbeatInterval = 15
	defaultLeaseSeconds      = 120
	defaultStageTimeout      = 1800
	defaultMaxAttempts       = 3
	defaultRetryBackoff      = 10
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/reelforge/reelforge"
	defaultLLMTitle          = "ReelForge Scene Planner"
	defaultLLMTimeoutSeconds = 120
	defaultDownloadBinary    = "yt-dlp"
	defaultDownloadFormat    = "mp3"
	defaultDownloadTimeout   = 900
	defaultMaxDurationMin    = 180
	defaultTranscribeBinary  = "whisper"
	defaultTranscribeModel   = "base"
	defaultTranscribeTimeout = 1800
	defaultImagesBaseURL     = "https://api.openai.com/v1/images/generations"
	defaultImagesModel       = "gpt-image-1"
	defaultImagesConcurrency = 2
	defaultImagesTimeout     = 180
	defaultImageWidth        = 1080
	defaultImageHeight       = 1920
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultFrameRate         = 30
	defaultVideoTimeout      = 1800
	defaultSceneWordBudget   = 20
	defaultMaxScenes         = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			QueuePollInterval:   defaultQueuePollInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			LeaseSeconds:        defaultLeaseSeconds,
			StageTimeout:        defaultStageTimeout,
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoff,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Download: Download{
			Binary:         defaultDownloadBinary,
			AudioFormat:    defaultDownloadFormat,
			TimeoutSeconds: defaultDownloadTimeout,
			MaxDurationMin: defaultMaxDurationMin,
		},
		Transcribe: Transcribe{
			Binary:         defaultTranscribeBinary,
			Model:          defaultTranscribeModel,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Images: Images{
			BaseURL:        defaultImagesBaseURL,
			Model:          defaultImagesModel,
			Concurrency:    defaultImagesConcurrency,
			TimeoutSeconds: defaultImagesTimeout,
			Width:          defaultImageWidth,
			Height:         defaultImageHeight,
		},
		Video: Video{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			FrameRate:      defaultFrameRate,
			TimeoutSeconds: defaultVideoTimeout,
		},
		Scenes: Scenes{
			WordBudget: defaultSceneWordBudget,
			MaxScenes:  defaultMaxScenes,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
