package main

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/leads"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) CreateUser(ctx context.Context, user *models.User, password string) error {
	return m.Called(ctx, user, password).Error(0)
}

func (m *MockStore) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	args := m.Called(ctx, login, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockStore) ToggleAdmin(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) Overview(ctx context.Context) (*models.Overview, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Overview), args.Error(1)
}

func (m *MockStore) FundedKey(ctx context.Context, userID string) (*models.LicenseKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LicenseKey), args.Error(1)
}

func (m *MockStore) GetKeyByValue(ctx context.Context, value string) (*models.LicenseKey, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LicenseKey), args.Error(1)
}

func (m *MockStore) ActivateKey(ctx context.Context, userID, keyValue string) (*models.LicenseKey, bool, error) {
	args := m.Called(ctx, userID, keyValue)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.LicenseKey), args.Bool(1), args.Error(2)
}

func (m *MockStore) GenerateKeys(ctx context.Context, count, units int) ([]*models.LicenseKey, error) {
	args := m.Called(ctx, count, units)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LicenseKey), args.Error(1)
}

func (m *MockStore) ListKeys(ctx context.Context) ([]*models.LicenseKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LicenseKey), args.Error(1)
}

func (m *MockStore) DeleteKey(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) ResetKey(ctx context.Context, id string) (*models.LicenseKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LicenseKey), args.Error(1)
}

func (m *MockStore) TopUpKey(ctx context.Context, id string, amount int) (*models.LicenseKey, error) {
	args := m.Called(ctx, id, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LicenseKey), args.Error(1)
}

func (m *MockStore) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	return m.Called(ctx, ds).Error(0)
}

func (m *MockStore) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dataset), args.Error(1)
}

func (m *MockStore) ActivateDataset(ctx context.Context, id string) (*models.Dataset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dataset), args.Error(1)
}

func (m *MockStore) DeleteDataset(ctx context.Context, id string) (*models.Dataset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dataset), args.Error(1)
}

func (m *MockStore) CreateSavedFilter(ctx context.Context, f *models.SavedFilter) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockStore) GetSavedFilter(ctx context.Context, userID, id string) (*models.SavedFilter, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedFilter), args.Error(1)
}

func (m *MockStore) ListSavedFilters(ctx context.Context, userID string) ([]*models.SavedFilter, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SavedFilter), args.Error(1)
}

func (m *MockStore) DeleteSavedFilter(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockStore) CountSavedFilters(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ListExportEvents(ctx context.Context, limit int) ([]*models.ExportEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExportEvent), args.Error(1)
}

// MockLeads is a mock implementation of LeadService
type MockLeads struct {
	mock.Mock
}

func (m *MockLeads) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	args := m.Called(ctx)
	return args.Get(0).(*catalog.Catalog), args.Error(1)
}

func (m *MockLeads) Search(ctx context.Context, userID string, req leads.Request) (*leads.SearchResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leads.SearchResult), args.Error(1)
}

func (m *MockLeads) Preview(ctx context.Context, userID string, req leads.Request) (*leads.PreviewResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leads.PreviewResult), args.Error(1)
}

func (m *MockLeads) Export(ctx context.Context, userID string, req leads.Request) (*leads.ExportResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leads.ExportResult), args.Error(1)
}

func (m *MockLeads) QuickExport(ctx context.Context, userID, format string) (*leads.ExportResult, error) {
	args := m.Called(ctx, userID, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leads.ExportResult), args.Error(1)
}

func (m *MockLeads) DatasetStats(ctx context.Context) (*models.DatasetStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DatasetStats), args.Error(1)
}

// MockPublisher is a mock implementation of DatasetPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveDataset(ctx context.Context, datasetID, filePath string) (string, error) {
	args := m.Called(ctx, datasetID, filePath)
	return args.String(0), args.Error(1)
}

func (m *MockArchiver) RestoreDataset(ctx context.Context, objectKey, filePath string) error {
	return m.Called(ctx, objectKey, filePath).Error(0)
}

func (m *MockArchiver) Delete(ctx context.Context, objectName string) error {
	return m.Called(ctx, objectName).Error(0)
}
