package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// claimCandidateWindow bounds how many dispatchable jobs a claim attempt
// inspects before giving up for this poll cycle.
const claimCandidateWindow = 10

// ErrClaimLost marks a write refused because the worker no longer holds the
// job: the job left the running state or another owner took the claim. The
// worker must abandon the job without persisting further state.
var ErrClaimLost = errors.New("claim lost")

// ClaimNext atomically claims the oldest dispatchable job for the given
// owner. A job is dispatchable when it is queued, or running with no live
// claim (lease expired or never set, as after a crash). Exactly one caller
// wins each job; losers move on to the next candidate. Returns nil when
// nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, owner string, lease time.Duration) (*Job, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs
         WHERE status IN (?, ?)
           AND (claim_owner IS NULL OR lease_expires_at IS NULL OR lease_expires_at < ?)
         ORDER BY created_at LIMIT ?`,
		StatusQueued, StatusRunning, nowStr, claimCandidateWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("list claim candidates: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	leaseStr := now.Add(lease).Format(time.RFC3339Nano)
	for _, id := range candidates {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, claim_owner = ?, lease_expires_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ?
               AND status IN (?, ?)
               AND (claim_owner IS NULL OR lease_expires_at IS NULL OR lease_expires_at < ?)`,
			StatusRunning, owner, leaseStr, nowStr, nowStr,
			id,
			StatusQueued, StatusRunning, nowStr,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 1 {
			return s.GetByID(ctx, id)
		}
	}
	return nil, nil
}

// Heartbeat extends the claim lease for a job the owner still holds. Returns
// false when the claim has been lost, in which case the worker must abandon
// the job without persisting further state.
func (s *Store) Heartbeat(ctx context.Context, id, owner string, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET last_heartbeat = ?, lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND claim_owner = ?`,
		now.Format(time.RFC3339Nano),
		now.Add(lease).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id, owner,
	)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseClaim drops the owner's claim, leaving the job status untouched.
func (s *Store) ReleaseClaim(ctx context.Context, id, owner string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET claim_owner = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND claim_owner = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id, owner,
	); err != nil {
		return fmt.Errorf("release claim on job %s: %w", id, err)
	}
	return nil
}

// OwnsClaim reports whether the owner still holds a live claim on the job.
func (s *Store) OwnsClaim(ctx context.Context, id, owner string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs
         WHERE id = ? AND claim_owner = ? AND lease_expires_at >= ?`,
		id, owner, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check claim on job %s: %w", id, err)
	}
	return count == 1, nil
}
