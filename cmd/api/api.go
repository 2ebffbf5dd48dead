package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/leads"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// Store is the persistence the handlers depend on
type Store interface {
	Health(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User, password string) error
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	ToggleAdmin(ctx context.Context, id string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	Overview(ctx context.Context) (*models.Overview, error)

	FundedKey(ctx context.Context, userID string) (*models.LicenseKey, error)
	GetKeyByValue(ctx context.Context, value string) (*models.LicenseKey, error)
	ActivateKey(ctx context.Context, userID, keyValue string) (*models.LicenseKey, bool, error)
	GenerateKeys(ctx context.Context, count, units int) ([]*models.LicenseKey, error)
	ListKeys(ctx context.Context) ([]*models.LicenseKey, error)
	DeleteKey(ctx context.Context, id string) error
	ResetKey(ctx context.Context, id string) (*models.LicenseKey, error)
	TopUpKey(ctx context.Context, id string, amount int) (*models.LicenseKey, error)

	CreateDataset(ctx context.Context, ds *models.Dataset) error
	ListDatasets(ctx context.Context) ([]*models.Dataset, error)
	ActivateDataset(ctx context.Context, id string) (*models.Dataset, error)
	DeleteDataset(ctx context.Context, id string) (*models.Dataset, error)

	CreateSavedFilter(ctx context.Context, f *models.SavedFilter) error
	GetSavedFilter(ctx context.Context, userID, id string) (*models.SavedFilter, error)
	ListSavedFilters(ctx context.Context, userID string) ([]*models.SavedFilter, error)
	DeleteSavedFilter(ctx context.Context, userID, id string) error
	CountSavedFilters(ctx context.Context, userID string) (int, error)

	ListExportEvents(ctx context.Context, limit int) ([]*models.ExportEvent, error)
}

// LeadService runs searches and exports
type LeadService interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
	Search(ctx context.Context, userID string, req leads.Request) (*leads.SearchResult, error)
	Preview(ctx context.Context, userID string, req leads.Request) (*leads.PreviewResult, error)
	Export(ctx context.Context, userID string, req leads.Request) (*leads.ExportResult, error)
	QuickExport(ctx context.Context, userID, format string) (*leads.ExportResult, error)
	DatasetStats(ctx context.Context) (*models.DatasetStats, error)
}

// Cache holds counters and cached entries shared across instances
type Cache interface {
	Ping(ctx context.Context) error
	ExportsToday(ctx context.Context, userID string, now time.Time) (int64, error)
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
	ResetRateLimit(ctx context.Context, key string) error
	InvalidateDataset(ctx context.Context, datasetID string) error
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, resource, token string) error
}

// Archiver copies uploaded datasets to object storage
type Archiver interface {
	ArchiveDataset(ctx context.Context, datasetID, filePath string) (string, error)
	RestoreDataset(ctx context.Context, objectKey, filePath string) error
	Delete(ctx context.Context, objectName string) error
}

// DatasetPublisher announces dataset changes on the bus
type DatasetPublisher interface {
	PublishDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error
}

// DatasetValidator checks uploaded files before they are registered
type DatasetValidator interface {
	Validate(ctx context.Context, path string) error
}

type settings struct {
	TokenTTL      time.Duration
	DatasetDir    string
	MaxUploadSize int64
}

// API holds the dependencies of the HTTP handlers. cache, archive and
// events are optional.
type API struct {
	store     Store
	leads     LeadService
	validator DatasetValidator
	cache     Cache
	archive   Archiver
	events    DatasetPublisher
	logger    *logging.Logger
	settings  settings
}

func setupRouter(api *API, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(api.logger))

	// Health check
	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", api.register)
		auth.POST("/login", api.login)
	}

	user := v1.Group("")
	user.Use(middleware.JWTAuth())
	if limiter != nil {
		user.Use(middleware.RateLimit(limiter))
	}
	{
		user.GET("/me", api.me)
		user.GET("/me/leads", api.myLeads)
		user.GET("/dashboard", api.dashboard)
		user.POST("/keys/activate", api.activateKey)
		user.GET("/catalog", api.getCatalog)

		user.POST("/leads/search", api.searchLeads)
		user.POST("/leads/preview", api.previewLeads)
		user.POST("/leads/export", api.exportLeads)
		user.POST("/leads/quick-export", api.quickExport)

		user.GET("/filters", api.listFilters)
		user.POST("/filters", api.createFilter)
		user.GET("/filters/:id", api.getFilter)
		user.DELETE("/filters/:id", api.deleteFilter)
	}

	admin := user.Group("/admin")
	admin.Use(middleware.AdminOnly(api.store))
	{
		admin.POST("/keys", api.generateKeys)
		admin.GET("/keys", api.listKeys)
		admin.DELETE("/keys/:id", api.deleteKey)
		admin.POST("/keys/:id/reset", api.resetKey)
		admin.POST("/keys/:id/top-up", api.topUpKey)

		admin.GET("/users", api.listUsers)
		admin.POST("/users/:id/toggle-admin", api.toggleAdmin)
		admin.DELETE("/users/:id", api.deleteUser)

		admin.GET("/datasets", api.listDatasets)
		admin.POST("/datasets", api.uploadDataset)
		admin.POST("/datasets/:id/activate", api.activateDataset)
		admin.DELETE("/datasets/:id", api.deleteDataset)

		admin.GET("/exports", api.listExports)
		admin.GET("/overview", api.overview)
	}

	return router
}
