package main

import (
	"context"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/queue"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// EventRecorder persists audit events
type EventRecorder interface {
	RecordExportEvent(ctx context.Context, ev *models.ExportEvent) error
	RecordDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error
}

// newEventHandler returns the consumer callback. A returned error sends the
// message to the retry queue.
func newEventHandler(recorder EventRecorder, logger *logging.Logger) func(context.Context, *queue.Message) error {
	return func(ctx context.Context, msg *queue.Message) error {
		err := msg.Validate()
		if err == nil {
			err = record(ctx, recorder, logger, msg)
		}

		if err != nil {
			metrics.RecordEventProcessed(msg.Type, "error")
			logger.WithError(err).WithField("type", msg.Type).Warn("Failed to record audit event")
			return err
		}
		metrics.RecordEventProcessed(msg.Type, "success")
		return nil
	}
}

func record(ctx context.Context, recorder EventRecorder, logger *logging.Logger, msg *queue.Message) error {
	switch msg.Type {
	case queue.MessageTypeExport:
		if err := recorder.RecordExportEvent(ctx, msg.Export); err != nil {
			return err
		}
		logger.WithUserID(msg.Export.UserID).
			WithField("kind", msg.Export.Kind).
			WithField("rows", msg.Export.Rows).
			Debug("Export event recorded")
	case queue.MessageTypeDataset:
		if err := recorder.RecordDatasetEvent(ctx, msg.Dataset); err != nil {
			return err
		}
		logger.WithDatasetID(msg.Dataset.DatasetID).
			WithField("action", msg.Dataset.Action).
			Debug("Dataset event recorded")
	}
	return nil
}
