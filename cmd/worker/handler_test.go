package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/queue"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// MockRecorder is a mock implementation of EventRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordExportEvent(ctx context.Context, ev *models.ExportEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockRecorder) RecordDatasetEvent(ctx context.Context, ev *models.DatasetEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func TestEventHandler_Export(t *testing.T) {
	metrics.EventsProcessedTotal.Reset()

	recorder := new(MockRecorder)
	ev := &models.ExportEvent{ID: "ev1", UserID: "u1", Kind: models.ExportKindExport, Format: "csv", Rows: 12, CreatedAt: time.Now()}
	recorder.On("RecordExportEvent", mock.Anything, ev).Return(nil)

	handle := newEventHandler(recorder, logging.NewNopLogger())
	err := handle(context.Background(), &queue.Message{Type: queue.MessageTypeExport, Export: ev})

	require.NoError(t, err)
	recorder.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues(queue.MessageTypeExport, "success")))
}

func TestEventHandler_Dataset(t *testing.T) {
	recorder := new(MockRecorder)
	ev := &models.DatasetEvent{DatasetID: "d1", Action: models.DatasetActionActivated, ActorID: "admin"}
	recorder.On("RecordDatasetEvent", mock.Anything, ev).Return(nil)

	handle := newEventHandler(recorder, logging.NewNopLogger())
	require.NoError(t, handle(context.Background(), &queue.Message{Type: queue.MessageTypeDataset, Dataset: ev}))

	recorder.AssertNotCalled(t, "RecordExportEvent", mock.Anything, mock.Anything)
}

func TestEventHandler_FailureIsReturnedForRetry(t *testing.T) {
	metrics.EventsProcessedTotal.Reset()

	recorder := new(MockRecorder)
	recorder.On("RecordDatasetEvent", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	handle := newEventHandler(recorder, logging.NewNopLogger())
	err := handle(context.Background(), &queue.Message{
		Type:    queue.MessageTypeDataset,
		Dataset: &models.DatasetEvent{DatasetID: "d1", Action: models.DatasetActionDeleted},
	})

	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsProcessedTotal.WithLabelValues(queue.MessageTypeDataset, "error")))
}

func TestEventHandler_UnknownType(t *testing.T) {
	recorder := new(MockRecorder)

	handle := newEventHandler(recorder, logging.NewNopLogger())
	err := handle(context.Background(), &queue.Message{Type: "billing"})

	assert.Error(t, err)
	recorder.AssertNotCalled(t, "RecordExportEvent", mock.Anything, mock.Anything)
	recorder.AssertNotCalled(t, "RecordDatasetEvent", mock.Anything, mock.Anything)
}

func TestEventHandler_MissingPayload(t *testing.T) {
	recorder := new(MockRecorder)

	handle := newEventHandler(recorder, logging.NewNopLogger())
	err := handle(context.Background(), &queue.Message{Type: queue.MessageTypeExport})

	assert.Error(t, err)
	recorder.AssertNotCalled(t, "RecordExportEvent", mock.Anything, mock.Anything)
}
