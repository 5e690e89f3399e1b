package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordArtifact commits an artifact row at the next version for its
// (job, stage, kind) series. The row is the commit point: the file must be
// fully written and renamed into place before this is called, so a crash or
// cancellation mid-write leaves no visible artifact. The insert only applies
// while the job is still running under the committing owner's claim; a
// cancelled job or a lease takeover yields ErrClaimLost and no row.
func (s *Store) RecordArtifact(ctx context.Context, jobID, owner, stage, kind, path string) (*Artifact, error) {
	ctx = ensureContext(ctx)
	var artifact *Artifact
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin artifact tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var (
			status     string
			claimOwner string
		)
		row := tx.QueryRowContext(
			ctx,
			`SELECT status, COALESCE(claim_owner, '') FROM jobs WHERE id = ?`,
			jobID,
		)
		if err := row.Scan(&status, &claimOwner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("record artifact: job %s not found", jobID)
			}
			return fmt.Errorf("check job claim: %w", err)
		}
		if Status(status) != StatusRunning || claimOwner != owner {
			return fmt.Errorf("record artifact on job %s: %w", jobID, ErrClaimLost)
		}

		var version int
		row = tx.QueryRowContext(
			ctx,
			`SELECT COALESCE(MAX(version), 0) FROM artifacts WHERE job_id = ? AND stage = ? AND kind = ?`,
			jobID, stage, kind,
		)
		if err := row.Scan(&version); err != nil {
			return fmt.Errorf("next artifact version: %w", err)
		}
		version++

		createdAt := time.Now().UTC()
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO artifacts (job_id, stage, kind, version, path, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			jobID, stage, kind, version, path, createdAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("artifact insert id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit artifact: %w", err)
		}
		artifact = &Artifact{
			ID:        id,
			JobID:     jobID,
			Stage:     stage,
			Kind:      kind,
			Version:   version,
			Path:      path,
			CreatedAt: createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// LatestArtifact returns the highest-version artifact for a (job, stage, kind)
// series, or nil when the stage has not committed one.
func (s *Store) LatestArtifact(ctx context.Context, jobID, stage, kind string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, job_id, stage, kind, version, path, created_at
         FROM artifacts WHERE job_id = ? AND stage = ? AND kind = ?
         ORDER BY version DESC LIMIT 1`,
		jobID, stage, kind,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest artifact: %w", err)
	}
	return artifact, nil
}

// HasArtifact reports whether a stage committed any artifact for the job.
// Artifact presence is the idempotence guard the resume logic keys on.
func (s *Store) HasArtifact(ctx context.Context, jobID, stage string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM artifacts WHERE job_id = ? AND stage = ?`,
		jobID, stage,
	)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check artifact: %w", err)
	}
	return count > 0, nil
}

// ListArtifacts returns every committed artifact for a job ordered by stage
// then version.
func (s *Store) ListArtifacts(ctx context.Context, jobID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, stage, kind, version, path, created_at
         FROM artifacts WHERE job_id = ? ORDER BY stage, kind, version`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		artifact   Artifact
		createdRaw string
	)
	if err := scanner.Scan(
		&artifact.ID,
		&artifact.JobID,
		&artifact.Stage,
		&artifact.Kind,
		&artifact.Version,
		&artifact.Path,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		artifact.CreatedAt = created
	}
	return &artifact, nil
}
