package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workflow contains daemon timing, lease, and retry configuration.
type Workflow struct {
	Workers             int `toml:"workers"`
	QueuePollInterval   int `toml:"queue_poll_interval"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	LeaseSeconds        int `toml:"lease_seconds"`
	StageTimeout        int `toml:"stage_timeout"`
	MaxAttempts         int `toml:"max_attempts"`
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
}

// LLM contains shared LLM connection settings used for scene planning and
// translation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Download contains configuration for audio acquisition.
type Download struct {
	Binary         string `toml:"binary"`
	AudioFormat    string `toml:"audio_format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxDurationMin int    `toml:"max_duration_min"`
}

// Transcribe contains configuration for speech-to-text.
type Transcribe struct {
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Images contains configuration for scene image generation.
type Images struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
}

// Video contains configuration for final reel composition.
type Video struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	FrameRate      int    `toml:"frame_rate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Scenes contains configuration for transcript-to-scene planning.
type Scenes struct {
	WordBudget int `toml:"word_budget"`
	MaxScenes  int `toml:"max_scenes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for ReelForge.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Workflow: worker count, polling, leases, and retry policy
//   - LLM: shared LLM connection settings for scene planning and translation
//   - Download: source audio acquisition
//   - Transcribe: speech-to-text settings
//   - Images: scene image generation
//   - Video: final reel composition
//   - Scenes: transcript chunking parameters
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Workflow   Workflow   `toml:"workflow"`
	LLM        LLM        `toml:"llm"`
	Download   Download   `toml:"download"`
	Transcribe Transcribe `toml:"transcribe"`
	Images     Images     `toml:"images"`
	Video      Video      `toml:"video"`
	Scenes     Scenes     `toml:"scenes"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/reelforge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the job queue database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "reelforge.db")
}

// ArtifactRoot returns the directory under which per-job artifacts are stored.
func (c *Config) ArtifactRoot() string {
	return filepath.Join(c.Paths.DataDir, "jobs")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains common LLM settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// ImagesLLM returns the image generation connection settings. Falls back to
// [llm] credentials when the [images] section leaves them unset.
func (c *Config) ImagesLLM() LLMConfig {
	cfg := LLMConfig{
		APIKey:         strings.TrimSpace(c.Images.APIKey),
		BaseURL:        strings.TrimSpace(c.Images.BaseURL),
		Model:          strings.TrimSpace(c.Images.Model),
		TimeoutSeconds: c.Images.TimeoutSeconds,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(c.LLM.APIKey)
	}
	return cfg
}
