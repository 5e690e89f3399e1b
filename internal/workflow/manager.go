// Package workflow coordinates queue processing: a pool of workers claims
// jobs, runs their pipeline stages in order, and applies the retry and
// failure policy.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// Manager owns the worker pool and the per-stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	handlers map[string]stage.Handler
	ownerID  string

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	leaseDuration     time.Duration
	stageTimeout      time.Duration
	retryBackoff      time.Duration
	maxAttempts       int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with the supplied stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, handlers ...stage.Handler) *Manager {
	registry := make(map[string]stage.Handler, len(handlers))
	for _, handler := range handlers {
		registry[handler.Name()] = handler
	}
	return &Manager{
		cfg:               cfg,
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow"),
		handlers:          registry,
		ownerID:           uuid.NewString(),
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		leaseDuration:     time.Duration(cfg.Workflow.LeaseSeconds) * time.Second,
		stageTimeout:      time.Duration(cfg.Workflow.StageTimeout) * time.Second,
		retryBackoff:      time.Duration(cfg.Workflow.RetryBackoffSeconds) * time.Second,
		maxAttempts:       cfg.Workflow.MaxAttempts,
	}
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		owner := fmt.Sprintf("%s-w%d", m.ownerID, i)
		go m.runWorker(runCtx, owner)
	}
	return nil
}

// Stop terminates background processing and waits for workers to exit.
// In-flight leases are left to expire so another worker can reclaim them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// LastError returns the most recent processing error, for status surfaces.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Health reports readiness of every registered stage handler.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(m.handlers))
	for _, name := range stage.Order() {
		handler, ok := m.handlers[name]
		if !ok {
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}
