package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndAppliesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "reelforge")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7602" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.Workers)
	}
	if cfg.Workflow.LeaseSeconds <= cfg.Workflow.HeartbeatInterval {
		t.Fatal("expected lease to exceed heartbeat interval")
	}
	if cfg.Scenes.WordBudget != 20 {
		t.Fatalf("unexpected scene word budget: %d", cfg.Scenes.WordBudget)
	}
	if cfg.Download.Binary != "yt-dlp" {
		t.Fatalf("unexpected download binary: %q", cfg.Download.Binary)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "reelforge.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.ArtifactRoot() != filepath.Join(wantData, "jobs") {
		t.Fatalf("unexpected artifact root: %q", cfg.ArtifactRoot())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelforge.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Workflow struct {
			Workers           int `toml:"workers"`
			HeartbeatInterval int `toml:"heartbeat_interval"`
			LeaseSeconds      int `toml:"lease_seconds"`
		} `toml:"workflow"`
		Images struct {
			Concurrency int `toml:"concurrency"`
		} `toml:"images"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Workflow.Workers = 4
	custom.Workflow.HeartbeatInterval = 5
	custom.Workflow.LeaseSeconds = 45
	custom.Images.Concurrency = 3

	encoded, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != custom.Paths.DataDir {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Workflow.Workers)
	}
	if cfg.Workflow.LeaseSeconds != 45 {
		t.Fatalf("unexpected lease: %d", cfg.Workflow.LeaseSeconds)
	}
	if cfg.Images.Concurrency != 3 {
		t.Fatalf("unexpected image concurrency: %d", cfg.Images.Concurrency)
	}
	if cfg.LLM.Model == "" {
		t.Fatal("expected LLM model default to survive partial config")
	}
}

func TestValidateRejectsLeaseNotExceedingHeartbeat(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelforge.toml")
	content := strings.Join([]string{
		"[workflow]",
		"heartbeat_interval = 30",
		"lease_seconds = 30",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "lease_seconds") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleWritesParseableConfig(t *testing.T) {
	tempDir := t.TempDir()
	samplePath := filepath.Join(tempDir, "nested", "config.toml")
	if err := config.CreateSample(samplePath); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(samplePath)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("sample should carry defaults, got %d workers", cfg.Workflow.Workers)
	}
}

func TestEnvFallbackForLLMKey(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REELFORGE_LLM_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
}
