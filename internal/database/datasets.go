package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const datasetColumns = `id, name, path, object_key, size_bytes, is_active, uploaded_at`

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var ds models.Dataset
	err := row.Scan(&ds.ID, &ds.Name, &ds.Path, &ds.ObjectKey, &ds.SizeBytes, &ds.IsActive, &ds.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// CreateDataset registers an uploaded dataset. An active dataset replaces
// the previously active one in the same transaction.
func (r *Repository) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if ds.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE datasets SET is_active = FALSE WHERE is_active`); err != nil {
			return fmt.Errorf("failed to deactivate datasets: %w", err)
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO datasets (id, name, path, object_key, size_bytes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING uploaded_at`,
		ds.ID, ds.Name, ds.Path, ds.ObjectKey, ds.SizeBytes, ds.IsActive,
	).Scan(&ds.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

// GetDataset retrieves a dataset by ID
func (r *Repository) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	ds, err := scanDataset(r.db.Pool.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return ds, nil
}

// ActiveDataset returns the dataset queries run against
func (r *Repository) ActiveDataset(ctx context.Context) (*models.Dataset, error) {
	ds, err := scanDataset(r.db.Pool.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE is_active`))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("active dataset: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active dataset: %w", err)
	}
	return ds, nil
}

// ListDatasets returns every dataset, newest first
func (r *Repository) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []*models.Dataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// ActivateDataset makes id the only active dataset. An unknown id leaves the
// current active dataset untouched.
func (r *Repository) ActivateDataset(ctx context.Context, id string) (*models.Dataset, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE datasets SET is_active = FALSE WHERE is_active AND id <> $1`, id); err != nil {
		return nil, fmt.Errorf("failed to deactivate datasets: %w", err)
	}

	ds, err := scanDataset(tx.QueryRow(ctx,
		`UPDATE datasets SET is_active = TRUE WHERE id = $1 RETURNING `+datasetColumns, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to activate dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return ds, nil
}

// DeleteDataset removes an inactive dataset and returns it so the caller can
// remove its file
func (r *Repository) DeleteDataset(ctx context.Context, id string) (*models.Dataset, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ds, err := scanDataset(tx.QueryRow(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = $1 FOR UPDATE`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock dataset: %w", err)
	}
	if ds.IsActive {
		return nil, ErrDatasetActive
	}

	if _, err := tx.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit deletion: %w", err)
	}
	return ds, nil
}
