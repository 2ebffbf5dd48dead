package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const (
	uploadLock    = "dataset-upload"
	uploadLockTTL = 30 * time.Minute

	datasetFileName = "dataset.db"
)

// List datasets endpoint
func (api *API) listDatasets(c *gin.Context) {
	datasets, err := api.store.ListDatasets(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"datasets": datasets})
}

// Upload dataset endpoint. The file is validated before it is registered;
// it becomes the active dataset unless activate=false is sent.
func (api *API) uploadDataset(c *gin.Context) {
	if api.settings.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, api.settings.MaxUploadSize)
	}

	file, err := c.FormFile("dataset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No dataset file provided"})
		return
	}

	ctx := c.Request.Context()
	if api.cache != nil {
		token, acquired, err := api.cache.AcquireLock(ctx, uploadLock, uploadLockTTL)
		if err != nil {
			api.logger.WithError(err).Warn("Upload lock unavailable")
		} else if !acquired {
			c.JSON(http.StatusConflict, gin.H{"error": "another dataset upload is in progress"})
			return
		} else {
			defer func() {
				if err := api.cache.ReleaseLock(context.WithoutCancel(ctx), uploadLock, token); err != nil {
					api.logger.WithError(err).Warn("Failed to release upload lock")
				}
			}()
		}
	}

	datasetID := uuid.New().String()
	dir := filepath.Join(api.settings.DatasetDir, datasetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		api.respondError(c, fmt.Errorf("failed to create dataset directory: %w", err))
		return
	}

	// the client's file name is kept only as the display name
	dest := filepath.Join(dir, datasetFileName)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		_ = os.RemoveAll(dir)
		api.respondError(c, fmt.Errorf("failed to save dataset: %w", err))
		return
	}

	if err := api.validator.Validate(ctx, dest); err != nil {
		_ = os.RemoveAll(dir)
		metrics.RecordDatasetUpload("invalid", file.Size)
		api.respondError(c, err)
		return
	}

	ds := &models.Dataset{
		ID:        datasetID,
		Name:      file.Filename,
		Path:      dest,
		SizeBytes: file.Size,
		IsActive:  !strings.EqualFold(c.PostForm("activate"), "false"),
	}

	if api.archive != nil {
		key, err := api.archive.ArchiveDataset(ctx, datasetID, dest)
		if err != nil {
			api.logger.WithDatasetID(datasetID).WithError(err).Warn("Failed to archive dataset")
		} else {
			ds.ObjectKey = key
		}
	}

	if err := api.store.CreateDataset(ctx, ds); err != nil {
		_ = os.RemoveAll(dir)
		if ds.ObjectKey != "" {
			_ = api.archive.Delete(ctx, ds.ObjectKey)
		}
		metrics.RecordDatasetUpload("error", file.Size)
		api.respondError(c, err)
		return
	}

	metrics.RecordDatasetUpload("success", file.Size)
	api.announceDataset(c, ds.ID, models.DatasetActionUploaded)
	if ds.IsActive {
		api.announceDataset(c, ds.ID, models.DatasetActionActivated)
	}

	c.JSON(http.StatusCreated, ds)
}

// Activate dataset endpoint. A dataset whose file is missing on this host
// is restored from its archived copy first.
func (api *API) activateDataset(c *gin.Context) {
	ds, err := api.store.ActivateDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	api.restoreMissing(c.Request.Context(), ds)
	api.announceDataset(c, ds.ID, models.DatasetActionActivated)
	c.JSON(http.StatusOK, ds)
}

// Delete dataset endpoint. The active dataset cannot be deleted.
func (api *API) deleteDataset(c *gin.Context) {
	ctx := c.Request.Context()

	ds, err := api.store.DeleteDataset(ctx, c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}

	// only files the upload endpoint stored are removed
	if dir, ok := api.uploadDir(ds.Path); ok {
		if err := os.RemoveAll(dir); err != nil {
			api.logger.WithDatasetID(ds.ID).WithError(err).Warn("Failed to remove dataset file")
		}
	}
	if api.archive != nil && ds.ObjectKey != "" {
		if err := api.archive.Delete(ctx, ds.ObjectKey); err != nil {
			api.logger.WithDatasetID(ds.ID).WithError(err).Warn("Failed to delete archived dataset")
		}
	}
	if api.cache != nil {
		if err := api.cache.InvalidateDataset(ctx, ds.ID); err != nil {
			api.logger.WithDatasetID(ds.ID).WithError(err).Warn("Failed to invalidate dataset cache")
		}
	}

	api.announceDataset(c, ds.ID, models.DatasetActionDeleted)
	c.JSON(http.StatusOK, gin.H{"message": "Dataset deleted successfully", "dataset_id": ds.ID})
}

// restoreMissing downloads the archived copy of ds when its file is gone
func (api *API) restoreMissing(ctx context.Context, ds *models.Dataset) {
	if api.archive == nil || ds.ObjectKey == "" {
		return
	}
	if _, err := os.Stat(ds.Path); !errors.Is(err, os.ErrNotExist) {
		return
	}

	if err := os.MkdirAll(filepath.Dir(ds.Path), 0o755); err != nil {
		api.logger.WithDatasetID(ds.ID).WithError(err).Warn("Failed to create dataset directory")
		return
	}
	if err := api.archive.RestoreDataset(ctx, ds.ObjectKey, ds.Path); err != nil {
		api.logger.WithDatasetID(ds.ID).WithError(err).Warn("Failed to restore dataset from archive")
		return
	}
	api.logger.WithDatasetID(ds.ID).Info("Dataset restored from archive")
}

// uploadDir returns the per-dataset upload directory holding path
func (api *API) uploadDir(path string) (string, bool) {
	if api.settings.DatasetDir == "" {
		return "", false
	}
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(api.settings.DatasetDir, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.Contains(rel, string(filepath.Separator)) {
		return "", false
	}
	return dir, true
}

// announceDataset publishes a dataset event. Failures are only logged.
func (api *API) announceDataset(c *gin.Context, datasetID, action string) {
	if api.events == nil {
		return
	}
	actorID, _ := middleware.GetUserID(c)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()

	err := api.events.PublishDatasetEvent(ctx, &models.DatasetEvent{
		DatasetID: datasetID,
		Action:    action,
		ActorID:   actorID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		metrics.RecordError("api", "publish")
		api.logger.WithDatasetID(datasetID).WithError(err).Warn("Failed to publish dataset event")
	}
}
