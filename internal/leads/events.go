package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// debit describes a committed quota debit
type debit struct {
	userID    string
	key       *models.LicenseKey
	kind      string
	format    string
	rows      int
	bytes     int64
	datasetID string
	started   time.Time
}

// afterDebit feeds metrics, logs, the export counter and the event bus.
// Failures here are logged and never reach the caller.
func (s *Service) afterDebit(ctx context.Context, d debit) {
	duration := time.Since(d.started)
	remaining := 0
	keyID := ""
	if d.key != nil {
		remaining = d.key.RemainingUnits
		keyID = d.key.ID
	}

	s.logger.WithUserID(d.userID).WithDatasetID(d.datasetID).
		LogExportEvent(d.userID, d.kind, d.format, d.rows, remaining, duration)

	if d.rows == 0 {
		return
	}
	metrics.RecordExport(d.kind, d.format, d.rows, d.bytes)

	// the request may already be finishing, keep side channels alive a bit
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	now := s.now().UTC()

	if s.counter != nil && d.kind != models.ExportKindSearch {
		if _, err := s.counter.IncrementExportsToday(sideCtx, d.userID, now); err != nil {
			s.logger.WithUserID(d.userID).WithError(err).Warn("Failed to increment export counter")
		}
	}

	if s.publisher != nil {
		ev := &models.ExportEvent{
			ID:             uuid.New().String(),
			UserID:         d.userID,
			LicenseKeyID:   keyID,
			Kind:           d.kind,
			Format:         d.format,
			Rows:           d.rows,
			RemainingAfter: remaining,
			DatasetID:      d.datasetID,
			CreatedAt:      now,
		}
		if err := s.publisher.PublishExportEvent(sideCtx, ev); err != nil {
			metrics.RecordError("leads", "publish")
			s.logger.WithUserID(d.userID).WithError(err).Warn("Failed to publish export event")
		}
	}
}

func toFieldIDs(ids []string) []catalog.FieldID {
	out := make([]catalog.FieldID, len(ids))
	for i, id := range ids {
		out[i] = catalog.FieldID(id)
	}
	return out
}

func fromFieldIDs(ids []catalog.FieldID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
