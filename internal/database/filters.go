package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const savedFilterColumns = `id, user_id, name, filters, columns, created_at`

func scanSavedFilter(row pgx.Row) (*models.SavedFilter, error) {
	var f models.SavedFilter
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Filters, &f.Columns, &f.CreatedAt); err != nil {
		return nil, err
	}
	if f.Columns == nil {
		f.Columns = []string{}
	}
	return &f, nil
}

// CreateSavedFilter stores a named filter for its user
func (r *Repository) CreateSavedFilter(ctx context.Context, f *models.SavedFilter) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Filters == nil {
		f.Filters = models.FilterSpec{}
	}
	if f.Columns == nil {
		f.Columns = []string{}
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO saved_filters (id, user_id, name, filters, columns)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		f.ID, f.UserID, f.Name, f.Filters, f.Columns,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save filter: %w", err)
	}
	return nil
}

// GetSavedFilter retrieves one of the user's filters
func (r *Repository) GetSavedFilter(ctx context.Context, userID, id string) (*models.SavedFilter, error) {
	f, err := scanSavedFilter(r.db.Pool.QueryRow(ctx,
		`SELECT `+savedFilterColumns+` FROM saved_filters WHERE id = $1 AND user_id = $2`, id, userID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("saved filter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved filter: %w", err)
	}
	return f, nil
}

// ListSavedFilters returns the user's filters, newest first
func (r *Repository) ListSavedFilters(ctx context.Context, userID string) ([]*models.SavedFilter, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+savedFilterColumns+` FROM saved_filters WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved filters: %w", err)
	}
	defer rows.Close()

	filters := []*models.SavedFilter{}
	for rows.Next() {
		f, err := scanSavedFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved filter: %w", err)
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// DeleteSavedFilter removes one of the user's filters
func (r *Repository) DeleteSavedFilter(ctx context.Context, userID, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM saved_filters WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete saved filter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("saved filter %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountSavedFilters counts the user's filters
func (r *Repository) CountSavedFilters(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM saved_filters WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count saved filters: %w", err)
	}
	return n, nil
}
