package database

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const (
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups      = 4
	keyGroupLength = 4
	// keyAttempts bounds retries on key_value collisions
	keyAttempts = 5
)

const keyColumns = `id, key_value, total_units, remaining_units, owner_id, merged_into, activated_at, created_at`

func scanKey(row pgx.Row) (*models.LicenseKey, error) {
	var key models.LicenseKey
	err := row.Scan(
		&key.ID, &key.KeyValue, &key.TotalUnits, &key.RemainingUnits,
		&key.OwnerID, &key.MergedInto, &key.ActivatedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// generateKeyValue returns a random XXXX-XXXX-XXXX-XXXX key
func generateKeyValue() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	groups := make([]string, keyGroups)
	for g := range groups {
		var b strings.Builder
		for i := 0; i < keyGroupLength; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
		groups[g] = b.String()
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeKeyValue uppercases and trims a user-supplied key
func NormalizeKeyValue(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// GenerateKeys creates count unbound keys worth units each
func (r *Repository) GenerateKeys(ctx context.Context, count, units int) ([]*models.LicenseKey, error) {
	if count <= 0 || units <= 0 {
		return nil, quota.ErrInvalidAmount
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keys := make([]*models.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := insertKey(ctx, tx, units)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit keys: %w", err)
	}
	return keys, nil
}

func insertKey(ctx context.Context, tx pgx.Tx, units int) (*models.LicenseKey, error) {
	for attempt := 0; attempt < keyAttempts; attempt++ {
		value, err := generateKeyValue()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}

		key, err := scanKey(tx.QueryRow(ctx, `
			INSERT INTO license_keys (id, key_value, total_units, remaining_units)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (key_value) DO NOTHING
			RETURNING `+keyColumns,
			uuid.New().String(), value, units,
		))
		if err == pgx.ErrNoRows {
			// collision, draw again
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("failed to generate a unique key after %d attempts", keyAttempts)
}

// GetKey retrieves a key by ID
func (r *Repository) GetKey(ctx context.Context, id string) (*models.LicenseKey, error) {
	key, err := scanKey(r.db.Pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("license key %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

// GetKeyByValue retrieves a key by its XXXX-XXXX-XXXX-XXXX value
func (r *Repository) GetKeyByValue(ctx context.Context, value string) (*models.LicenseKey, error) {
	value = NormalizeKeyValue(value)
	key, err := scanKey(r.db.Pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE key_value = $1`, value))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("license key %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

// ListKeys returns every key, newest first
func (r *Repository) ListKeys(ctx context.Context) ([]*models.LicenseKey, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+keyColumns+` FROM license_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.LicenseKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteKey removes a key. Keys merged into it go with it.
func (r *Repository) DeleteKey(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM license_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license key %s: %w", id, ErrNotFound)
	}
	return nil
}

// FundedKey returns the user's primary key
func (r *Repository) FundedKey(ctx context.Context, userID string) (*models.LicenseKey, error) {
	key, err := scanKey(r.db.Pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE owner_id = $1 AND merged_into IS NULL`, userID))
	if err == pgx.ErrNoRows {
		return nil, quota.ErrNoLicense
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get funded key: %w", err)
	}
	return key, nil
}

func lockFundedKey(ctx context.Context, tx pgx.Tx, userID string) (*models.LicenseKey, error) {
	return scanKey(tx.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE owner_id = $1 AND merged_into IS NULL FOR UPDATE`, userID))
}

// Consume locks the user's funded key, runs fn and debits the row count fn
// returns in the same transaction. fn must not return more rows than the key
// can pay for; any error from fn rolls back the debit.
func (r *Repository) Consume(ctx context.Context, userID string, fn func(key *models.LicenseKey) (int, error)) (*models.LicenseKey, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key, err := lockFundedKey(ctx, tx, userID)
	if err == pgx.ErrNoRows {
		return nil, quota.ErrNoLicense
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock key: %w", err)
	}
	if err := quota.CheckFunded(key); err != nil {
		return key, err
	}

	snapshot := *key
	requested, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if requested > key.RemainingUnits {
		return nil, fmt.Errorf("debit of %d exceeds remaining %d", requested, key.RemainingUnits)
	}

	if _, err := quota.Debit(key, requested); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE license_keys SET remaining_units = $2 WHERE id = $1`, key.ID, key.RemainingUnits)
	if err != nil {
		return nil, fmt.Errorf("failed to debit key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return key, nil
}

// ActivateKey binds keyValue to the user. When the user already holds a
// funded key the new key's units are merged into it. The returned key is
// the user's funded key after the operation.
func (r *Repository) ActivateKey(ctx context.Context, userID, keyValue string) (*models.LicenseKey, bool, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// serialize activations of the same user
	var lockedID string
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&lockedID)
	if err == pgx.ErrNoRows {
		return nil, false, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock user: %w", err)
	}

	value := NormalizeKeyValue(keyValue)
	incoming, err := scanKey(tx.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE key_value = $1 FOR UPDATE`, value))
	if err == pgx.ErrNoRows {
		return nil, false, fmt.Errorf("license key %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock key: %w", err)
	}
	if incoming.IsMerged() {
		return nil, false, quota.ErrKeyAlreadyBound
	}

	now := time.Now().UTC()
	primary, err := lockFundedKey(ctx, tx, userID)
	switch {
	case err == pgx.ErrNoRows:
		if err := quota.Bind(incoming, userID, now); err != nil {
			return nil, false, err
		}
		_, err = tx.Exec(ctx, `UPDATE license_keys SET owner_id = $2, activated_at = $3 WHERE id = $1`,
			incoming.ID, incoming.OwnerID, incoming.ActivatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to bind key: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit activation: %w", err)
		}
		return incoming, false, nil

	case err != nil:
		return nil, false, fmt.Errorf("failed to lock funded key: %w", err)
	}

	if err := quota.Merge(primary, incoming, now); err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `UPDATE license_keys SET total_units = $2, remaining_units = $3 WHERE id = $1`,
		primary.ID, primary.TotalUnits, primary.RemainingUnits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to grow funded key: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE license_keys
		SET owner_id = $2, activated_at = $3, remaining_units = $4, merged_into = $5
		WHERE id = $1`,
		incoming.ID, incoming.OwnerID, incoming.ActivatedAt, incoming.RemainingUnits, incoming.MergedInto)
	if err != nil {
		return nil, false, fmt.Errorf("failed to merge key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit merge: %w", err)
	}
	return primary, true, nil
}

// ResetKey restores a key's remaining units to its total
func (r *Repository) ResetKey(ctx context.Context, id string) (*models.LicenseKey, error) {
	return r.mutateKey(ctx, id, func(key *models.LicenseKey) error {
		quota.Reset(key)
		return nil
	})
}

// TopUpKey grows a key's total and remaining units by amount
func (r *Repository) TopUpKey(ctx context.Context, id string, amount int) (*models.LicenseKey, error) {
	return r.mutateKey(ctx, id, func(key *models.LicenseKey) error {
		return quota.TopUp(key, amount)
	})
}

func (r *Repository) mutateKey(ctx context.Context, id string, fn func(*models.LicenseKey) error) (*models.LicenseKey, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key, err := scanKey(tx.QueryRow(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("license key %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock key: %w", err)
	}
	if key.IsMerged() {
		return nil, fmt.Errorf("license key %s is merged into %s: %w", id, *key.MergedInto, ErrConflict)
	}

	if err := fn(key); err != nil {
		return nil, err
	}
	if err := quota.Validate(key); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE license_keys SET total_units = $2, remaining_units = $3 WHERE id = $1`,
		key.ID, key.TotalUnits, key.RemainingUnits)
	if err != nil {
		return nil, fmt.Errorf("failed to update key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return key, nil
}
