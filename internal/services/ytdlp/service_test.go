package ytdlp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/services"
	"reelforge/internal/services/ytdlp"
)

func TestProbeParsesDurationAndTitle(t *testing.T) {
	svc := ytdlp.NewService(ytdlp.Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "1845.0\tDeep Dive Episode 12", nil
	})

	meta, err := svc.Probe(context.Background(), "https://example.com/ep12")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if meta.Title != "Deep Dive Episode 12" {
		t.Fatalf("unexpected title: %q", meta.Title)
	}
	if meta.DurationSeconds != 1845 {
		t.Fatalf("unexpected duration: %f", meta.DurationSeconds)
	}
}

func TestDownloadAudioEnforcesDurationCeiling(t *testing.T) {
	svc := ytdlp.NewService(ytdlp.Config{MaxDurationMin: 10})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "900.0\tToo Long", nil
	})

	_, err := svc.DownloadAudio(context.Background(), "https://example.com/ep", t.TempDir(), 0)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDownloadAudioJobLimitTightensCeiling(t *testing.T) {
	svc := ytdlp.NewService(ytdlp.Config{MaxDurationMin: 60})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "900.0\tHalf Hour Episode", nil
	})

	_, err := svc.DownloadAudio(context.Background(), "https://example.com/ep", t.TempDir(), 600)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for job-level limit, got %v", err)
	}
}

func TestDownloadAudioReturnsOutputPath(t *testing.T) {
	dest := t.TempDir()
	svc := ytdlp.NewService(ytdlp.Config{AudioFormat: "mp3"})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		if err := os.WriteFile(filepath.Join(dest, "audio.mp3"), []byte("audio"), 0o644); err != nil {
			return "", err
		}
		return "", nil
	})

	path, err := svc.DownloadAudio(context.Background(), "https://example.com/ep", dest, 0)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != filepath.Join(dest, "audio.mp3") {
		t.Fatalf("unexpected path: %s", path)
	}
}

func TestDownloadAudioRejectsEmptyURL(t *testing.T) {
	svc := ytdlp.NewService(ytdlp.Config{})
	if _, err := svc.DownloadAudio(context.Background(), "  ", t.TempDir(), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
