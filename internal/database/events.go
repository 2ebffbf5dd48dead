package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// RecordExportEvent persists an export audit event. Redelivered events are
// ignored.
func (r *Repository) RecordExportEvent(ctx context.Context, ev *models.ExportEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO export_events (id, user_id, license_key_id, kind, format, rows, remaining_after, dataset_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.UserID, ev.LicenseKeyID, ev.Kind, ev.Format, ev.Rows, ev.RemainingAfter, ev.DatasetID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record export event: %w", err)
	}
	return nil
}

// ListExportEvents returns the most recent export events
func (r *Repository) ListExportEvents(ctx context.Context, limit int) ([]*models.ExportEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, license_key_id, kind, format, rows, remaining_after, dataset_id, created_at
		FROM export_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list export events: %w", err)
	}
	defer rows.Close()

	events := []*models.ExportEvent{}
	for rows.Next() {
		ev, err := scanExportEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanExportEvent(row pgx.Row) (*models.ExportEvent, error) {
	var ev models.ExportEvent
	err := row.Scan(&ev.ID, &ev.UserID, &ev.LicenseKeyID, &ev.Kind, &ev.Format,
		&ev.Rows, &ev.RemainingAfter, &ev.DatasetID, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// RecordDatasetEvent persists an administrative dataset change
func (r *Repository) RecordDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO dataset_events (dataset_id, action, actor_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		ev.DatasetID, ev.Action, ev.ActorID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record dataset event: %w", err)
	}
	return nil
}
