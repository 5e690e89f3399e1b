// Package whisper wraps the whisper CLI for transcription with segment timing.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	langpkg "reelforge/internal/language"
	"reelforge/internal/transcript"
)

// DefaultBinary is the whisper command resolved from PATH.
const DefaultBinary = "whisper"

// DefaultModel balances accuracy and runtime for spoken-word audio.
const DefaultModel = "base"

// Config captures the runtime settings for transcription.
type Config struct {
	Binary string
	Model  string
}

// Service transcribes audio files via the whisper CLI.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// whisperPayload is the JSON structure the whisper CLI writes next to the audio.
type whisperPayload struct {
	Language string `json:"language"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe runs whisper against the audio file and returns the parsed
// transcript with detected language and per-segment timing. outputDir is
// where whisper writes its JSON output.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir string) (*transcript.Transcript, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("transcribe: audio path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	return loadTranscript(jsonPath)
}

func loadTranscript(jsonPath string) (*transcript.Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: read output: %w", err)
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("transcribe: parse whisper json: %w", err)
	}

	result := &transcript.Transcript{Language: langpkg.ToISO2(payload.Language)}
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, transcript.Segment{
			Text:  text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	if len(result.Segments) == 0 {
		return nil, fmt.Errorf("transcribe: no speech detected in %s", filepath.Base(jsonPath))
	}
	return result, nil
}

// HealthCheck verifies the whisper binary is resolvable.
func (s *Service) HealthCheck(ctx context.Context) error {
	_ = ctx
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("whisper health: %w", err)
	}
	return nil
}
