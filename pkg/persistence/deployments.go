package persistence

import (
	"context"
	"fmt"

	"sitebuilder/pkg/deploy"
)

var _ deploy.SiteRepository = (*Store)(nil)

// MarkDeploying moves a site to deploying under runID and clears its last error.
func (s *Store) MarkDeploying(ctx context.Context, siteID, runID string) error {
	return s.setStatus(ctx, siteID, runID, deploy.SiteDeploying, "")
}

// MarkDeployed records a successful run.
func (s *Store) MarkDeployed(ctx context.Context, siteID, runID string) error {
	return s.setStatus(ctx, siteID, runID, deploy.SiteDeployed, "")
}

// MarkFailed records a failed run and its reason.
func (s *Store) MarkFailed(ctx context.Context, siteID, runID, reason string) error {
	return s.setStatus(ctx, siteID, runID, deploy.SiteFailed, reason)
}

func (s *Store) setStatus(ctx context.Context, siteID, runID string, status deploy.SiteStatus, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sites SET status = ?, last_run_id = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, string(status), runID, reason, s.timestamp(), siteID)
	if err != nil {
		return fmt.Errorf("failed to mark site %s %s: %w", siteID, status, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check site update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: site %s", ErrNotFound, siteID)
	}
	s.logger.Debug("site %s is %s (run %s)", siteID, status, runID)
	return nil
}

// RecordStep upserts the record of one step of a run.
func (s *Store) RecordStep(ctx context.Context, siteID, runID string, rec deploy.StepRecord) error {
	optional := 0
	if rec.Optional {
		optional = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployment_steps
			(site_id, run_id, seq, name, kind, status, message, optional, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, run_id, seq) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`, siteID, runID, rec.Seq, rec.Name, string(rec.Kind), string(rec.Status), rec.Message, optional,
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt), s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to record step %s of run %s: %w", rec.Name, runID, err)
	}
	return nil
}

// ListSteps returns the step records of a run in plan order. An empty runID selects the site's
// most recent run.
func (s *Store) ListSteps(ctx context.Context, siteID, runID string) ([]deploy.StepRecord, error) {
	if runID == "" {
		site, err := s.GetSite(ctx, siteID)
		if err != nil {
			return nil, err
		}
		if site.LastRunID == "" {
			return nil, nil
		}
		runID = site.LastRunID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, kind, status, message, optional, started_at, finished_at
		FROM deployment_steps WHERE site_id = ? AND run_id = ? ORDER BY seq
	`, siteID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps of run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []deploy.StepRecord
	for rows.Next() {
		var (
			rec               deploy.StepRecord
			kind, status      string
			optional          int
			started, finished string
		)
		if err := rows.Scan(&rec.Seq, &rec.Name, &kind, &status, &rec.Message, &optional, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		rec.Kind = deploy.Kind(kind)
		rec.Status = deploy.StepStatus(status)
		rec.Optional = optional != 0
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	return records, nil
}
