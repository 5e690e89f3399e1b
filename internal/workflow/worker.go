package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelforge/internal/artifacts"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
)

func (m *Manager) runWorker(ctx context.Context, owner string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String("worker", owner))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx, owner, m.leaseDuration)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.waitForJobOrShutdown(ctx)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		m.processJob(ctx, owner, logger, job)
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// processJob drives one claimed job through as many stages as it can: until
// the pipeline completes, pauses for input, fails, or the claim is lost.
func (m *Manager) processJob(ctx context.Context, owner string, logger *slog.Logger, job *queue.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobLogger := logging.WithContext(jobCtx, logger)

	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeatLoop(jobCtx, &hbWG, job.ID, owner, cancel)
	defer func() {
		cancel()
		hbWG.Wait()
	}()

	for {
		if jobCtx.Err() != nil {
			m.reportInterrupt(ctx, jobLogger, job.ID)
			return
		}

		next, err := m.nextStage(jobCtx, job.ID)
		if err != nil {
			m.setLastError(err)
			jobLogger.Error("failed to plan next stage", logging.Error(err))
			return
		}
		if next == "" {
			if _, err := m.store.MarkCompleted(jobCtx, job.ID, owner); err != nil {
				jobLogger.Error("failed to mark job completed", logging.Error(err))
				m.setLastError(err)
				return
			}
			jobLogger.Info("job completed", logging.Args(
				logging.String(logging.FieldEventType, "job_complete"),
			)...)
			return
		}

		handler, ok := m.handlers[next]
		if !ok {
			jobLogger.Error("no handler registered for stage", logging.String(logging.FieldStage, next))
			_, _ = m.store.MarkFailed(context.WithoutCancel(jobCtx), job.ID, "stage "+next+" has no handler")
			return
		}
		if _, err := m.store.SetCurrentStage(jobCtx, job.ID, owner, next); err != nil {
			jobLogger.Warn("failed to record current stage", logging.Error(err))
		}

		// Every dispatch counts as an attempt, including the one that
		// ultimately succeeds.
		attempts, err := m.store.RecordAttempt(jobCtx, job.ID, next)
		if err != nil {
			jobLogger.Warn("failed to record attempt", logging.Error(err))
			attempts = m.maxAttempts
		}

		// Pick up editable spec changes made while the job was parked.
		if fresh, err := m.store.GetByID(jobCtx, job.ID); err == nil && fresh != nil {
			job = fresh
		}

		outcome, err := m.runStage(jobCtx, handler, job)
		if err != nil {
			if jobCtx.Err() != nil {
				m.reportInterrupt(ctx, jobLogger, job.ID)
				return
			}
			if errors.Is(err, queue.ErrClaimLost) {
				jobLogger.Info("claim lost at artifact commit; abandoning job",
					logging.String(logging.FieldStage, next),
					logging.String(logging.FieldEventType, "claim_lost"))
				m.reportInterrupt(ctx, jobLogger, job.ID)
				return
			}
			if !m.handleStageFailure(jobCtx, jobLogger, job.ID, next, attempts, err) {
				return
			}
			continue
		}

		if outcome == stage.Pause {
			m.parkForInput(jobCtx, jobLogger, job.ID, owner)
			return
		}

		// A stage that returns Continue must have committed an artifact;
		// without one the planner would dispatch it again forever.
		done, err := m.store.HasArtifact(jobCtx, job.ID, next)
		if err != nil {
			m.setLastError(err)
			jobLogger.Error("failed to verify stage artifact", logging.Error(err))
			return
		}
		if !done {
			jobLogger.Error("stage finished without committing an artifact",
				logging.String(logging.FieldStage, next))
			_, _ = m.store.MarkFailed(jobCtx, job.ID, "stage "+next+" finished without committing an artifact")
			return
		}
	}
}

// runStage runs Prepare and Execute under the per-stage timeout.
func (m *Manager) runStage(ctx context.Context, handler stage.Handler, job *queue.Job) (stage.Outcome, error) {
	stageCtx := services.WithStage(ctx, handler.Name())
	if m.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, m.stageTimeout)
		defer cancel()
	}

	stageLogger := logging.WithContext(stageCtx, m.logger)
	start := time.Now()
	stageLogger.Info("stage started", logging.Args(
		logging.String(logging.FieldEventType, "stage_start"),
	)...)

	if err := handler.Prepare(stageCtx, job); err != nil {
		return stage.Continue, err
	}
	outcome, err := handler.Execute(stageCtx, job)
	if err != nil {
		return outcome, err
	}

	stageLogger.Info("stage completed", logging.Args(
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
	)...)
	return outcome, nil
}

// handleStageFailure applies the retry policy. attempts is the dispatch count
// recorded for the stage, including the attempt that just failed. It returns
// true when the worker should retry the stage within the current claim.
func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, jobID, stageName string, attempts int, err error) bool {
	m.setLastError(err)
	kind := services.Classify(err)

	logger.Error("stage failed", logging.Args(
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, stageName),
		logging.String("error_kind", string(kind)),
		logging.Int("attempts", attempts),
		logging.Error(err),
	)...)

	retryable := services.Retryable(err)
	ceiling := m.maxAttempts
	if kind == services.KindResource {
		// Resource exhaustion rarely clears quickly; retry once, then park.
		ceiling = 2
		if ceiling > m.maxAttempts {
			ceiling = m.maxAttempts
		}
	}
	if !retryable || attempts >= ceiling {
		if _, failErr := m.store.MarkFailed(ctx, jobID, err.Error()); failErr != nil {
			logger.Error("failed to mark job failed", logging.Error(failErr))
		}
		return false
	}

	backoff := m.retryBackoff * time.Duration(attempts)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
	}
	return true
}

// parkForInput moves a paused job to awaiting_input with the committed scene
// plan as its editable spec, dropping the claim.
func (m *Manager) parkForInput(ctx context.Context, logger *slog.Logger, jobID, owner string) {
	var plan queue.EditableSpec
	artifact, err := m.store.LatestArtifact(ctx, jobID, stage.NameScenePlan, stage.KindScenePlan)
	if err != nil || artifact == nil {
		logger.Error("paused without a scene plan artifact", logging.Error(err))
		_, _ = m.store.MarkFailed(ctx, jobID, "scene plan missing after pause")
		return
	}
	if err := artifacts.ReadJSON(artifact.Path, &plan); err != nil {
		logger.Error("failed to decode scene plan", logging.Error(err))
		_, _ = m.store.MarkFailed(ctx, jobID, "scene plan unreadable: "+err.Error())
		return
	}
	ok, err := m.store.MarkAwaitingInput(ctx, jobID, owner, plan)
	if err != nil {
		logger.Error("failed to park job for input", logging.Error(err))
		m.setLastError(err)
		return
	}
	if !ok {
		logger.Warn("job left running state before it could be parked")
		return
	}
	logger.Info("job awaiting user input", logging.Args(
		logging.String(logging.FieldEventType, "job_awaiting_input"),
		logging.Int("scenes", len(plan.Scenes)),
	)...)
}

// reportInterrupt distinguishes a user cancellation from a shutdown or lost
// lease. Uses the parent context since the job context is already done.
func (m *Manager) reportInterrupt(parent context.Context, logger *slog.Logger, jobID string) {
	checkCtx := context.WithoutCancel(parent)
	job, err := m.store.GetByID(checkCtx, jobID)
	if err != nil || job == nil {
		return
	}
	switch job.Status {
	case queue.StatusCancelled:
		logger.Info("job cancelled mid-stage; partial work stays uncommitted",
			logging.String(logging.FieldEventType, "job_cancelled"))
	case queue.StatusRunning:
		logger.Info("stage interrupted; lease will expire for reclaim",
			logging.String(logging.FieldEventType, "stage_interrupted"))
	}
}

// nextStage returns the first pipeline stage without a committed artifact,
// or "" when every stage has committed.
func (m *Manager) nextStage(ctx context.Context, jobID string) (string, error) {
	for _, name := range stage.Order() {
		done, err := m.store.HasArtifact(ctx, jobID, name)
		if err != nil {
			return "", err
		}
		if !done {
			return name, nil
		}
	}
	return "", nil
}

// heartbeatLoop extends the claim lease until the context ends. Losing the
// claim (cancellation or lease takeover) cancels the job context via onLost.
func (m *Manager) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, jobID, owner string, onLost context.CancelFunc) {
	defer wg.Done()
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, m.logger.With(logging.String("component", "workflow-heartbeat")))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := m.store.Heartbeat(ctx, jobID, owner, m.leaseDuration)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
				continue
			}
			if !ok {
				logger.Info("claim lost; abandoning stage",
					logging.String(logging.FieldJobID, jobID),
					logging.String(logging.FieldEventType, "claim_lost"))
				onLost()
				return
			}
		}
	}
}
