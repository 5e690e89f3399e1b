// Package ytdlp wraps the yt-dlp binary for audio extraction from podcast
// episode URLs.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelforge/internal/services"
)

// DefaultBinary is the yt-dlp command resolved from PATH.
const DefaultBinary = "yt-dlp"

// Config captures the runtime settings for downloads.
type Config struct {
	Binary         string
	AudioFormat    string
	MaxDurationMin int
}

// Service downloads episode audio via yt-dlp.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
}

// NewService creates a download service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, args ...string) (string, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.Binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", s.cfg.Binary, err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// Metadata describes a source URL without downloading it.
type Metadata struct {
	Title           string
	DurationSeconds float64
}

// Probe fetches title and duration for the URL without downloading media.
func (s *Service) Probe(ctx context.Context, sourceURL string) (Metadata, error) {
	var meta Metadata
	if strings.TrimSpace(sourceURL) == "" {
		return meta, fmt.Errorf("%w: probe: source url required", services.ErrValidation)
	}
	output, err := s.run(ctx,
		"--no-playlist",
		"--skip-download",
		"--print", "%(duration)s\t%(title)s",
		sourceURL,
	)
	if err != nil {
		return meta, fmt.Errorf("probe %s: %w", sourceURL, err)
	}
	line := strings.TrimSpace(output)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	duration, title, ok := strings.Cut(line, "\t")
	if !ok {
		return meta, fmt.Errorf("probe %s: unexpected output %q", sourceURL, line)
	}
	meta.Title = strings.TrimSpace(title)
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(duration), 64); err == nil {
		meta.DurationSeconds = parsed
	}
	return meta, nil
}

// DownloadAudio fetches the URL's audio track into destDir and returns the
// resulting file path. The duration ceiling is enforced before the download
// starts so oversized episodes fail fast as validation errors. A positive
// maxSeconds tightens the configured ceiling for a single download.
func (s *Service) DownloadAudio(ctx context.Context, sourceURL, destDir string, maxSeconds int) (string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return "", fmt.Errorf("%w: download: source url required", services.ErrValidation)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("download: ensure dest dir: %w", err)
	}

	limit := float64(s.cfg.MaxDurationMin) * 60
	if maxSeconds > 0 && (limit <= 0 || float64(maxSeconds) < limit) {
		limit = float64(maxSeconds)
	}
	if limit > 0 {
		meta, err := s.Probe(ctx, sourceURL)
		if err != nil {
			return "", err
		}
		if meta.DurationSeconds > limit {
			return "", fmt.Errorf("%w: download: episode runs %.0fs, limit is %.0fs", services.ErrValidation, meta.DurationSeconds, limit)
		}
	}

	dest := filepath.Join(destDir, "audio."+s.cfg.AudioFormat)
	args := []string{
		"--no-playlist",
		"-x",
		"--audio-format", s.cfg.AudioFormat,
		"--audio-quality", "0",
		"-o", filepath.Join(destDir, "audio.%(ext)s"),
		sourceURL,
	}
	if _, err := s.run(ctx, args...); err != nil {
		return "", fmt.Errorf("download %s: %w", sourceURL, err)
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("download %s: output missing: %w", sourceURL, err)
	}
	return dest, nil
}

// HealthCheck verifies the yt-dlp binary is resolvable.
func (s *Service) HealthCheck(ctx context.Context) error {
	_ = ctx
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("yt-dlp health: %w", err)
	}
	return nil
}
