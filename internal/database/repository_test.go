package database

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestGenerateKeyValue(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		value, err := generateKeyValue()
		require.NoError(t, err)
		assert.Regexp(t, keyPattern, value)
		seen[value] = true
	}
	assert.Greater(t, len(seen), 195)
}

func TestNormalizeKeyValue(t *testing.T) {
	assert.Equal(t, "ABCD-1234-EFGH-5678", NormalizeKeyValue("  abcd-1234-efgh-5678\n"))
	assert.Equal(t, "", NormalizeKeyValue("   "))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

// setupTestRepository connects to TEST_DATABASE_URL and resets the schema
func setupTestRepository(t *testing.T) *Repository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test - TEST_DATABASE_URL not set")
	}

	db, err := New(config.DatabaseConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ctx := context.Background()
	_, err = db.Pool.Exec(ctx, `
		DROP TABLE IF EXISTS dataset_events, export_events, saved_filters, datasets, license_keys, users CASCADE`)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	repo := NewRepository(db)
	repo.SetBcryptCost(bcrypt.MinCost)
	return repo
}

func createTestUser(t *testing.T, repo *Repository, name string) *models.User {
	t.Helper()
	user := &models.User{Username: name, Email: name + "@Example.com"}
	require.NoError(t, repo.CreateUser(context.Background(), user, "secret123"))
	return user
}

func generateOne(t *testing.T, repo *Repository, units int) *models.LicenseKey {
	t.Helper()
	keys, err := repo.GenerateKeys(context.Background(), 1, units)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	return keys[0]
}

func TestRepository_Users(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "alice")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsAdmin, "first account is promoted")

	second := createTestUser(t, repo, "carol")
	assert.False(t, second.IsAdmin)

	dup := &models.User{Username: "alice", Email: "other@example.com"}
	err := repo.CreateUser(ctx, dup, "secret123")
	assert.ErrorIs(t, err, ErrConflict)

	byEmail, err := repo.Authenticate(ctx, "ALICE@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.Authenticate(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	toggled, err := repo.ToggleAdmin(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsAdmin)

	_, err = repo.ToggleAdmin(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestRepository_ActivateAndMerge(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "bob")
	first := generateOne(t, repo, 1000)
	second := generateOne(t, repo, 500)

	funded, merged, err := repo.ActivateKey(ctx, user.ID, first.KeyValue)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, first.ID, funded.ID)

	funded, merged, err = repo.ActivateKey(ctx, user.ID, second.KeyValue)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, funded.ID)
	assert.Equal(t, 1500, funded.TotalUnits)
	assert.Equal(t, 1500, funded.RemainingUnits)

	stored, err := repo.GetKey(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RemainingUnits)
	require.NotNil(t, stored.MergedInto)
	assert.Equal(t, first.ID, *stored.MergedInto)

	other := createTestUser(t, repo, "carol")
	_, _, err = repo.ActivateKey(ctx, other.ID, first.KeyValue)
	assert.ErrorIs(t, err, quota.ErrKeyAlreadyBound)
	_, _, err = repo.ActivateKey(ctx, other.ID, second.KeyValue)
	assert.ErrorIs(t, err, quota.ErrKeyAlreadyBound)
	_, _, err = repo.ActivateKey(ctx, other.ID, "NOPE-NOPE-NOPE-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Consume(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "dave")
	key := generateOne(t, repo, 1000)
	_, _, err := repo.ActivateKey(ctx, user.ID, key.KeyValue)
	require.NoError(t, err)

	after, err := repo.Consume(ctx, user.ID, func(k *models.LicenseKey) (int, error) {
		assert.Equal(t, 1000, k.RemainingUnits)
		return 37, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 963, after.RemainingUnits)

	// a failing fn leaves the key untouched
	_, err = repo.Consume(ctx, user.ID, func(k *models.LicenseKey) (int, error) {
		return 0, errors.New("materialize failed")
	})
	require.Error(t, err)
	funded, err := repo.FundedKey(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 963, funded.RemainingUnits)

	_, err = repo.Consume(ctx, user.ID, func(k *models.LicenseKey) (int, error) {
		return k.RemainingUnits + 1, nil
	})
	require.Error(t, err)

	stranger := createTestUser(t, repo, "erin")
	called := false
	_, err = repo.Consume(ctx, stranger.ID, func(k *models.LicenseKey) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, quota.ErrNoLicense)
	assert.False(t, called)
}

func TestRepository_ConcurrentConsume(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "frank")
	key := generateOne(t, repo, 10)
	_, _, err := repo.ActivateKey(ctx, user.ID, key.KeyValue)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Consume(ctx, user.ID, func(k *models.LicenseKey) (int, error) {
				rows := 8
				if rows > k.RemainingUnits {
					rows = k.RemainingUnits
				}
				mu.Lock()
				delivered += rows
				mu.Unlock()
				return rows, nil
			})
			if err != nil {
				assert.ErrorIs(t, err, quota.ErrQuota)
			}
		}()
	}
	wg.Wait()

	funded, err := repo.FundedKey(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, delivered)
	assert.Equal(t, 0, funded.RemainingUnits)
}

func TestRepository_ResetAndTopUp(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "gina")
	key := generateOne(t, repo, 100)
	_, _, err := repo.ActivateKey(ctx, user.ID, key.KeyValue)
	require.NoError(t, err)
	_, err = repo.Consume(ctx, user.ID, func(*models.LicenseKey) (int, error) { return 60, nil })
	require.NoError(t, err)

	topped, err := repo.TopUpKey(ctx, key.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, 150, topped.TotalUnits)
	assert.Equal(t, 90, topped.RemainingUnits)

	reset, err := repo.ResetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, reset.RemainingUnits)

	_, err = repo.TopUpKey(ctx, key.ID, 0)
	assert.ErrorIs(t, err, quota.ErrInvalidAmount)
	_, err = repo.ResetKey(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DeleteUserReleasesKey(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "hank")
	key := generateOne(t, repo, 100)
	_, _, err := repo.ActivateKey(ctx, user.ID, key.KeyValue)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteUser(ctx, user.ID))
	assert.ErrorIs(t, repo.DeleteUser(ctx, user.ID), ErrNotFound)

	released, err := repo.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.False(t, released.IsBound())
	assert.Nil(t, released.ActivatedAt)

	next := createTestUser(t, repo, "ivy")
	_, _, err = repo.ActivateKey(ctx, next.ID, key.KeyValue)
	assert.NoError(t, err)
}

func TestRepository_Datasets(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	_, err := repo.ActiveDataset(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	first := &models.Dataset{Name: "a.db", Path: "/data/a.db", IsActive: true}
	require.NoError(t, repo.CreateDataset(ctx, first))
	second := &models.Dataset{Name: "b.db", Path: "/data/b.db", IsActive: true}
	require.NoError(t, repo.CreateDataset(ctx, second))

	active, err := repo.ActiveDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = repo.DeleteDataset(ctx, second.ID)
	assert.ErrorIs(t, err, ErrDatasetActive)

	_, err = repo.ActivateDataset(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
	active, err = repo.ActiveDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = repo.ActivateDataset(ctx, first.ID)
	require.NoError(t, err)
	deleted, err := repo.DeleteDataset(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/b.db", deleted.Path)

	all, err := repo.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_SavedFilterRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "jack")
	spec := models.FilterSpec{}
	spec.Set("uf", "SP")
	spec.Set("razao_social", "padaria")
	spec.Set("bairro", "")

	saved := &models.SavedFilter{UserID: user.ID, Name: "padarias sp", Filters: spec, Columns: []string{"cnpj_completo", "uf"}}
	require.NoError(t, repo.CreateSavedFilter(ctx, saved))

	got, err := repo.GetSavedFilter(ctx, user.ID, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, spec, got.Filters)
	assert.Equal(t, []string{"cnpj_completo", "uf"}, got.Columns)

	other := createTestUser(t, repo, "kate")
	_, err = repo.GetSavedFilter(ctx, other.ID, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSavedFilter(ctx, other.ID, saved.ID), ErrNotFound)

	n, err := repo.CountSavedFilters(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.DeleteSavedFilter(ctx, user.ID, saved.ID))
	list, err := repo.ListSavedFilters(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_ExportEvents(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	ev := &models.ExportEvent{
		ID: uuid.New().String(), UserID: "u1", LicenseKeyID: "k1",
		Kind: models.ExportKindExport, Format: models.ExportFormatCSV, Rows: 37, RemainingAfter: 963,
	}
	require.NoError(t, repo.RecordExportEvent(ctx, ev))
	// redelivery is ignored
	require.NoError(t, repo.RecordExportEvent(ctx, ev))

	events, err := repo.ListExportEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 37, events[0].Rows)

	require.NoError(t, repo.RecordDatasetEvent(ctx, &models.DatasetEvent{DatasetID: "d1", Action: models.DatasetActionActivated}))

	overview, err := repo.Overview(ctx)
	require.NoError(t, err)
	assert.Nil(t, overview.ActiveDataset)
}
