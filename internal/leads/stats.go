package leads

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// StatsCache stores dashboard statistics per dataset
type StatsCache interface {
	GetDatasetStats(ctx context.Context, datasetID string) (*models.DatasetStats, error)
	SetDatasetStats(ctx context.Context, datasetID string, stats *models.DatasetStats, ttl time.Duration) error
}

// SetStatsCache enables caching of dataset statistics for ttl
func (s *Service) SetStatsCache(c StatsCache, ttl time.Duration) {
	s.stats = c
	s.statsTTL = ttl
}

// DatasetStats summarizes the active dataset for the dashboard
func (s *Service) DatasetStats(ctx context.Context) (*models.DatasetStats, error) {
	t, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	cacheable := s.stats != nil && t.DatasetID != ""
	if cacheable {
		cached, err := s.stats.GetDatasetStats(ctx, t.DatasetID)
		if err != nil {
			s.logger.WithDatasetID(t.DatasetID).WithError(err).Warn("Stats cache read failed")
		}
		metrics.RecordCacheAccess("stats", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	stats, err := s.executor.Stats(ctx, t.Path)
	if err != nil {
		metrics.RecordQueryFailure("stats")
		s.logger.WithDatasetID(t.DatasetID).LogQueryFailure("stats", t.Path, err)
		return nil, err
	}

	if cacheable {
		if err := s.stats.SetDatasetStats(ctx, t.DatasetID, stats, s.statsTTL); err != nil {
			s.logger.WithDatasetID(t.DatasetID).WithError(err).Warn("Stats cache write failed")
		}
	}
	return stats, nil
}
