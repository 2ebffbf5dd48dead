package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
)

const (
	// DatasetPrefix is the object key prefix of archived datasets
	DatasetPrefix = "datasets"

	// Part size for multipart uploads of large dataset files (16MB)
	partSize = 16 * 1024 * 1024
	// Number of parts uploaded concurrently
	uploadThreads = 4
)

// Storage archives dataset files in object storage
type Storage struct {
	client     *minio.Client
	bucketName string
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// DatasetObjectKey names the archived copy of a dataset file
func DatasetObjectKey(datasetID, filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = "dataset.db"
	}
	return path.Join(DatasetPrefix, datasetID, base)
}

// ArchiveDataset uploads a dataset file and returns its object key
func (s *Storage) ArchiveDataset(ctx context.Context, datasetID, filePath string) (string, error) {
	key := DatasetObjectKey(datasetID, filePath)
	start := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat dataset: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucketName, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: getContentType(filePath),
		PartSize:    partSize,
		NumThreads:  uploadThreads,
		UserMetadata: map[string]string{
			"dataset-id": datasetID,
		},
	})
	if err != nil {
		metrics.RecordStorageOperation("archive", "error", time.Since(start).Seconds(), 0)
		return "", fmt.Errorf("failed to archive dataset: %w", err)
	}

	metrics.RecordStorageOperation("archive", "success", time.Since(start).Seconds(), info.Size())
	return key, nil
}

// RestoreDataset downloads an archived dataset to filePath
func (s *Storage) RestoreDataset(ctx context.Context, objectKey, filePath string) error {
	start := time.Now()

	if err := s.client.FGetObject(ctx, s.bucketName, objectKey, filePath, minio.GetObjectOptions{}); err != nil {
		metrics.RecordStorageOperation("restore", "error", time.Since(start).Seconds(), 0)
		return fmt.Errorf("failed to restore dataset: %w", err)
	}

	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}
	metrics.RecordStorageOperation("restore", "success", time.Since(start).Seconds(), size)
	return nil
}

// Delete deletes an object from storage
func (s *Storage) Delete(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".db", ".sqlite", ".sqlite3":
		return "application/vnd.sqlite3"
	case ".gz":
		return "application/gzip"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
