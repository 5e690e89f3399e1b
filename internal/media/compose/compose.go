// Package compose renders the final reel by stitching scene images over the
// episode audio with ffmpeg, optionally burning in subtitles.
package compose

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Slide pairs a scene image with the time it stays on screen.
type Slide struct {
	ImagePath       string
	DurationSeconds float64
}

// Request describes one render. Width and Height override the configured
// frame when set, for jobs that pick a non-default aspect ratio.
type Request struct {
	Slides       []Slide
	AudioPath    string
	SubtitlePath string
	OutputPath   string
	WorkDir      string
	Width        int
	Height       int
}

// Config captures the runtime settings for rendering.
type Config struct {
	FFmpegBinary string
	FrameRate    int
	Width        int
	Height       int
}

// Service renders reels via ffmpeg.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a render service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Width <= 0 {
		cfg.Width = 1080
	}
	if cfg.Height <= 0 {
		cfg.Height = 1920
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.FFmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.FFmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.cfg.FFmpegBinary, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Render builds the slideshow video. Slides are shown in order for their
// configured durations, scaled and center-cropped to the target frame.
func (s *Service) Render(ctx context.Context, req Request) error {
	if len(req.Slides) == 0 {
		return fmt.Errorf("render: no slides")
	}
	if req.AudioPath == "" {
		return fmt.Errorf("render: audio path required")
	}
	if req.OutputPath == "" {
		return fmt.Errorf("render: output path required")
	}
	workDir := req.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(req.OutputPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("render: ensure work dir: %w", err)
	}

	listPath := filepath.Join(workDir, "slides.txt")
	if err := os.WriteFile(listPath, []byte(concatList(req.Slides)), 0o644); err != nil {
		return fmt.Errorf("render: write slide list: %w", err)
	}

	width, height := req.Width, req.Height
	if width <= 0 || height <= 0 {
		width, height = s.cfg.Width, s.cfg.Height
	}
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", width, height),
		fmt.Sprintf("crop=%d:%d", width, height),
		fmt.Sprintf("fps=%d", s.cfg.FrameRate),
	}
	if req.SubtitlePath != "" {
		filters = append(filters, "subtitles="+escapeFilterPath(req.SubtitlePath))
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-i", req.AudioPath,
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		req.OutputPath,
	}
	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// concatList renders the ffmpeg concat demuxer playlist. The demuxer ignores
// the duration on the final entry, so the last image is listed twice.
func concatList(slides []Slide) string {
	var b strings.Builder
	for _, slide := range slides {
		duration := slide.DurationSeconds
		if duration <= 0 {
			duration = 1
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(slide.ImagePath))
		fmt.Fprintf(&b, "duration %.3f\n", duration)
	}
	fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(slides[len(slides)-1].ImagePath))
	return b.String()
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// escapeFilterPath escapes characters the ffmpeg filter graph parser treats
// specially in file names.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		":", `\:`,
		"'", `\'`,
		",", `\,`,
		"[", `\[`,
		"]", `\]`,
	)
	return replacer.Replace(path)
}

// HealthCheck verifies the ffmpeg binary is resolvable.
func (s *Service) HealthCheck(ctx context.Context) error {
	_ = ctx
	if _, err := exec.LookPath(s.cfg.FFmpegBinary); err != nil {
		return fmt.Errorf("ffmpeg health: %w", err)
	}
	return nil
}
