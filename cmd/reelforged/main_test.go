package main

import (
	"path/filepath"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/stage"
)

func TestBuildStagesCoversPipelineOrder(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	handlers := buildStages(&cfg, nil, logging.NewNop())
	if len(handlers) != len(stage.Order()) {
		t.Fatalf("expected %d stages, got %d", len(stage.Order()), len(handlers))
	}
	for i, name := range stage.Order() {
		if handlers[i] == nil {
			t.Fatalf("stage %d is nil", i)
		}
		if handlers[i].Name() != name {
			t.Errorf("stage %d: expected %q, got %q", i, name, handlers[i].Name())
		}
	}
}
