package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitebuilder/pkg/deploy"
	"sitebuilder/pkg/orchestrator"
)

// Snapshot kinds stored per site.
const (
	SnapshotArchitecture = "architecture"
	SnapshotDesign       = "design"
	SnapshotContent      = "content"
	SnapshotResult       = "result"
	SnapshotPlan         = "plan"
)

// Site is a stored site and its deployment status.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Site struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	BusinessType string            `json:"business_type"`
	Industry     string            `json:"industry,omitempty"`
	Status       deploy.SiteStatus `json:"status"`
	Confidence   *float64          `json:"confidence,omitempty"`
	LastRunID    string            `json:"last_run_id,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SaveResult stores an orchestration result for site. The site row is created or refreshed;
// its deployment status is left untouched on update. Each present payload replaces its snapshot.
func (s *Store) SaveResult(ctx context.Context, site Site, res orchestrator.Result) error {
	if site.ID == "" {
		return fmt.Errorf("site id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.timestamp()
	var confidence any
	if res.OverallConfidence != nil {
		confidence = *res.OverallConfidence
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sites (id, name, business_type, industry, status, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			business_type = excluded.business_type,
			industry = excluded.industry,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, site.ID, site.Name, site.BusinessType, site.Industry, string(deploy.SitePending), confidence, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert site %s: %w", site.ID, err)
	}

	snapshots := map[string]any{SnapshotResult: res}
	if res.Architecture != nil {
		snapshots[SnapshotArchitecture] = res.Architecture
	}
	if res.Design != nil {
		snapshots[SnapshotDesign] = res.Design
	}
	if res.Content != nil {
		snapshots[SnapshotContent] = res.Content
	}
	for kind, payload := range snapshots {
		if err := putSnapshot(ctx, tx, site.ID, kind, payload, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result for site %s: %w", site.ID, err)
	}
	return nil
}

// SavePlan stores the deployment plan of an existing site.
func (s *Store) SavePlan(ctx context.Context, siteID string, plan deploy.Plan) error {
	if _, err := s.GetSite(ctx, siteID); err != nil {
		return err
	}
	return putSnapshot(ctx, s.db, siteID, SnapshotPlan, plan, s.timestamp())
}

// LoadPlan returns the stored deployment plan of a site.
func (s *Store) LoadPlan(ctx context.Context, siteID string) (deploy.Plan, error) {
	var plan deploy.Plan
	if err := s.LoadSnapshot(ctx, siteID, SnapshotPlan, &plan); err != nil {
		return deploy.Plan{}, err
	}
	return plan, nil
}

// LoadSnapshot decodes the snapshot of kind into v.
func (s *Store) LoadSnapshot(ctx context.Context, siteID, kind string, v any) error {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM site_snapshots WHERE site_id = ? AND kind = ?`, siteID, kind,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s snapshot of site %s", ErrNotFound, kind, siteID)
	}
	if err != nil {
		return fmt.Errorf("failed to query %s snapshot: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to decode %s snapshot of site %s: %w", kind, siteID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putSnapshot(ctx context.Context, db execer, siteID, kind string, payload any, now string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO site_snapshots (site_id, kind, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(site_id, kind) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, siteID, kind, string(data), now)
	if err != nil {
		return fmt.Errorf("failed to store %s snapshot of site %s: %w", kind, siteID, err)
	}
	return nil
}

// GetSite returns a stored site.
func (s *Store) GetSite(ctx context.Context, siteID string) (*Site, error) {
	var (
		site                 Site
		status               string
		confidence           sql.NullFloat64
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, business_type, industry, status, confidence, last_run_id, last_error, created_at, updated_at
		FROM sites WHERE id = ?
	`, siteID).Scan(&site.ID, &site.Name, &site.BusinessType, &site.Industry, &status, &confidence,
		&site.LastRunID, &site.LastError, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: site %s", ErrNotFound, siteID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query site %s: %w", siteID, err)
	}

	site.Status = deploy.SiteStatus(status)
	if confidence.Valid {
		c := confidence.Float64
		site.Confidence = &c
	}
	site.CreatedAt = parseTime(createdAt)
	site.UpdatedAt = parseTime(updatedAt)
	return &site, nil
}

// ListSites returns all sites, most recently updated first.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sites ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan site id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	sites := make([]Site, 0, len(ids))
	for _, id := range ids {
		site, err := s.GetSite(ctx, id)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, nil
}
