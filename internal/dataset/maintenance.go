package dataset

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// RequiredTables must exist in every uploaded dataset
var RequiredTables = []string{catalog.TableEntity, catalog.TableEstablishment, catalog.TableTaxRegime}

// Validate checks that the file at path is a sqlite database carrying the
// tables of the fixed join
func (e *Executor) Validate(ctx context.Context, path string) error {
	db, err := e.openReadOnly(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	for _, table := range RequiredTables {
		if !found[table] {
			return fmt.Errorf("%w: missing table %s", ErrInvalidFormat, table)
		}
	}
	return nil
}

// Stats computes the dashboard figures of a dataset
func (e *Executor) Stats(ctx context.Context, path string) (*models.DatasetStats, error) {
	db, err := e.openReadOnly(path)
	if err != nil {
		return nil, wrapErr("open", path, err)
	}
	defer db.Close()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	stats := &models.DatasetStats{StateDistribution: make(map[string]int64)}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM empresas").Scan(&stats.TotalCompanies); err != nil {
		return nil, wrapErr("stats", path, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT uf, COUNT(*) AS total
		FROM estabelecimento
		WHERE uf IS NOT NULL AND uf != ''
		GROUP BY uf
		ORDER BY total DESC, uf
		LIMIT 10`)
	if err != nil {
		return nil, wrapErr("stats", path, err)
	}
	for rows.Next() {
		var uf string
		var total int64
		if err := rows.Scan(&uf, &total); err != nil {
			rows.Close()
			return nil, wrapErr("stats", path, err)
		}
		stats.StateDistribution[uf] = total
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("stats", path, err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN opcao_simples = 'S' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN opcao_simples = 'N' THEN 1 ELSE 0 END), 0)
		FROM simples`).Scan(&stats.SimplesDistribution.Optante, &stats.SimplesDistribution.NaoOptante)
	if err != nil {
		return nil, wrapErr("stats", path, err)
	}

	return stats, nil
}
