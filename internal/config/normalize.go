package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLLM()
	c.normalizeDownload()
	c.normalizeTranscribe()
	c.normalizeImages()
	c.normalizeVideo()
	c.normalizeScenes()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.LeaseSeconds <= 0 {
		c.Workflow.LeaseSeconds = defaultLeaseSeconds
	}
	if c.Workflow.StageTimeout <= 0 {
		c.Workflow.StageTimeout = defaultStageTimeout
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.RetryBackoffSeconds <= 0 {
		c.Workflow.RetryBackoffSeconds = defaultRetryBackoff
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("REELFORGE_LLM_API_KEY", "OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeDownload() {
	c.Download.Binary = strings.TrimSpace(c.Download.Binary)
	if c.Download.Binary == "" {
		c.Download.Binary = defaultDownloadBinary
	}
	c.Download.AudioFormat = strings.ToLower(strings.TrimSpace(c.Download.AudioFormat))
	if c.Download.AudioFormat == "" {
		c.Download.AudioFormat = defaultDownloadFormat
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeout
	}
	if c.Download.MaxDurationMin <= 0 {
		c.Download.MaxDurationMin = defaultMaxDurationMin
	}
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.Binary = strings.TrimSpace(c.Transcribe.Binary)
	if c.Transcribe.Binary == "" {
		c.Transcribe.Binary = defaultTranscribeBinary
	}
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultTranscribeModel
	}
	if c.Transcribe.TimeoutSeconds <= 0 {
		c.Transcribe.TimeoutSeconds = defaultTranscribeTimeout
	}
}

func (c *Config) normalizeImages() {
	c.Images.APIKey = strings.TrimSpace(c.Images.APIKey)
	if c.Images.APIKey == "" {
		c.Images.APIKey = firstEnv("REELFORGE_IMAGES_API_KEY", "OPENAI_API_KEY")
	}
	c.Images.BaseURL = strings.TrimSpace(c.Images.BaseURL)
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = defaultImagesBaseURL
	}
	c.Images.Model = strings.TrimSpace(c.Images.Model)
	if c.Images.Model == "" {
		c.Images.Model = defaultImagesModel
	}
	if c.Images.Concurrency <= 0 {
		c.Images.Concurrency = defaultImagesConcurrency
	}
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImagesTimeout
	}
	if c.Images.Width <= 0 {
		c.Images.Width = defaultImageWidth
	}
	if c.Images.Height <= 0 {
		c.Images.Height = defaultImageHeight
	}
}

func (c *Config) normalizeVideo() {
	c.Video.FFmpegBinary = strings.TrimSpace(c.Video.FFmpegBinary)
	if c.Video.FFmpegBinary == "" {
		c.Video.FFmpegBinary = defaultFFmpegBinary
	}
	c.Video.FFprobeBinary = strings.TrimSpace(c.Video.FFprobeBinary)
	if c.Video.FFprobeBinary == "" {
		c.Video.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Video.FrameRate <= 0 {
		c.Video.FrameRate = defaultFrameRate
	}
	if c.Video.TimeoutSeconds <= 0 {
		c.Video.TimeoutSeconds = defaultVideoTimeout
	}
}

func (c *Config) normalizeScenes() {
	if c.Scenes.WordBudget <= 0 {
		c.Scenes.WordBudget = defaultSceneWordBudget
	}
	if c.Scenes.MaxScenes <= 0 {
		c.Scenes.MaxScenes = defaultMaxScenes
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
