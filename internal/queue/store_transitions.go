package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Transition moves a job from one of the allowed statuses to the target
// status. Returns false when the job was not in an allowed status, so callers
// can detect races without a read-modify-write cycle.
func (s *Store) Transition(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition on job %s: no source statuses", id)
	}
	placeholders := makePlaceholders(len(from))
	args := make([]any, 0, len(from)+3)
	args = append(args, to, time.Now().UTC().Format(time.RFC3339Nano), id)
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkAwaitingInput parks a running job for user review, storing the editable
// spec produced by planning and dropping the worker's claim.
func (s *Store) MarkAwaitingInput(ctx context.Context, id, owner string, spec EditableSpec) (bool, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return false, fmt.Errorf("marshal editable spec: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, editable_spec_json = ?, claim_owner = NULL, lease_expires_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND claim_owner = ? AND status = ?`,
		StatusAwaitingInput,
		string(specJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id, owner, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("park job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateEditableSpec replaces the editable spec of a parked job. Only jobs in
// awaiting_input accept edits.
func (s *Store) UpdateEditableSpec(ctx context.Context, id string, spec EditableSpec) (bool, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return false, fmt.Errorf("marshal editable spec: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET editable_spec_json = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(specJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id, StatusAwaitingInput,
	)
	if err != nil {
		return false, fmt.Errorf("update editable spec on job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Resume moves a parked job back to running. The claim fields were cleared
// when the job parked, and a lease-less running job is dispatchable, so a
// worker picks it up on its next poll.
func (s *Store) Resume(ctx context.Context, id string) (bool, error) {
	return s.Transition(ctx, id, []Status{StatusAwaitingInput}, StatusRunning)
}

// RetryFailed moves a failed job back to queued, clearing its error. Attempt
// counters survive so chronic failures still hit their ceiling.
func (s *Store) RetryFailed(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = NULL, claim_owner = NULL, lease_expires_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		id, StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkFailed records a terminal failure with an operator-facing message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, claim_owner = NULL, lease_expires_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusFailed,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkCompleted records successful completion of the full pipeline.
func (s *Store) MarkCompleted(ctx context.Context, id, owner string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, current_stage = NULL, claim_owner = NULL, lease_expires_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND claim_owner = ? AND status = ?`,
		StatusCompleted,
		time.Now().UTC().Format(time.RFC3339Nano),
		id, owner, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Cancel moves any non-terminal job to cancelled. Workers notice the status
// change on their next heartbeat or claim check and stop without committing
// further artifacts.
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, claim_owner = NULL, lease_expires_at = NULL,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusCancelled,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SetCurrentStage records the stage a worker is about to execute.
func (s *Store) SetCurrentStage(ctx context.Context, id, owner, stage string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET current_stage = ?, updated_at = ? WHERE id = ? AND claim_owner = ?`,
		stage,
		time.Now().UTC().Format(time.RFC3339Nano),
		id, owner,
	)
	if err != nil {
		return false, fmt.Errorf("set stage on job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RecordAttempt increments the attempt counter for a stage and returns the
// new count.
func (s *Store) RecordAttempt(ctx context.Context, id, stage string) (int, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if job == nil {
		return 0, fmt.Errorf("record attempt: job %s not found", id)
	}
	attempts := job.Attempts()
	attempts[stage]++
	job.SetAttempts(attempts)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET attempts_json = ?, updated_at = ? WHERE id = ?`,
		nullableString(job.AttemptsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return 0, fmt.Errorf("record attempt on job %s: %w", id, err)
	}
	return attempts[stage], nil
}
