package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write
	ErrConflict = errors.New("already exists")
	// ErrInvalidCredentials is returned by Authenticate on any mismatch
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDatasetActive is returned when deleting the active dataset
	ErrDatasetActive = errors.New("dataset is active")
)

// Repository provides database operations
type Repository struct {
	db         *DB
	bcryptCost int
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, bcryptCost: bcrypt.DefaultCost}
}

// SetBcryptCost changes the cost used for new password hashes
func (r *Repository) SetBcryptCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		r.bcryptCost = cost
	}
}

// Health checks the connection
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Users

const userColumns = `id, username, email, password_hash, is_admin, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user with a bcrypt-hashed password
func (r *Repository) CreateUser(ctx context.Context, user *models.User, password string) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.Email = strings.ToLower(user.Email)

	// the first account becomes an administrator
	query := `
		INSERT INTO users (id, username, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5 OR NOT EXISTS (SELECT 1 FROM users))
		RETURNING is_admin, created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.IsAdmin,
	).Scan(&user.IsAdmin, &user.CreatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Username, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByLogin retrieves a user by username or email
func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = lower($1)`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, login))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Authenticate checks a login and password pair
func (r *Repository) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	user, err := r.GetUserByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// ListUsers returns every user, newest first
func (r *Repository) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ToggleAdmin flips the admin flag of a user
func (r *Repository) ToggleAdmin(ctx context.Context, id string) (*models.User, error) {
	query := `UPDATE users SET is_admin = NOT is_admin WHERE id = $1 RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle admin: %w", err)
	}

	return user, nil
}

// DeleteUser removes a user and releases the funded key back to the pool
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE license_keys SET owner_id = NULL, activated_at = NULL
		WHERE owner_id = $1 AND merged_into IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to release key: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Overview counts users and keys for the admin dashboard
func (r *Repository) Overview(ctx context.Context) (*models.Overview, error) {
	var overview models.Overview

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM license_keys WHERE merged_into IS NULL),
			(SELECT COUNT(*) FROM license_keys WHERE merged_into IS NULL AND owner_id IS NOT NULL)
	`).Scan(&overview.TotalUsers, &overview.TotalKeys, &overview.BoundKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load overview: %w", err)
	}

	active, err := r.ActiveDataset(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	overview.ActiveDataset = active

	return &overview, nil
}
