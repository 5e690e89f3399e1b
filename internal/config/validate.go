package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateScenes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":               c.Workflow.Workers,
		"workflow.queue_poll_interval":   c.Workflow.QueuePollInterval,
		"workflow.stage_timeout":         c.Workflow.StageTimeout,
		"workflow.max_attempts":          c.Workflow.MaxAttempts,
		"workflow.retry_backoff_seconds": c.Workflow.RetryBackoffSeconds,
		"download.timeout_seconds":       c.Download.TimeoutSeconds,
		"transcribe.timeout_seconds":     c.Transcribe.TimeoutSeconds,
		"video.timeout_seconds":          c.Video.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.LeaseSeconds <= 0 {
		return errors.New("workflow.lease_seconds must be positive")
	}
	if c.Workflow.LeaseSeconds <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_seconds must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	return nil
}

func (c *Config) validateImages() error {
	if strings.TrimSpace(c.Images.BaseURL) == "" {
		return errors.New("images.base_url must be set")
	}
	if c.Images.Concurrency <= 0 {
		return errors.New("images.concurrency must be positive")
	}
	if c.Images.Width <= 0 || c.Images.Height <= 0 {
		return errors.New("images.width and images.height must be positive")
	}
	return nil
}

func (c *Config) validateScenes() error {
	if c.Scenes.WordBudget <= 0 {
		return errors.New("scenes.word_budget must be positive")
	}
	if c.Scenes.MaxScenes <= 0 {
		return errors.New("scenes.max_scenes must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
