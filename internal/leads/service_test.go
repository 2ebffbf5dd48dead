package leads

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/dataset"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/export"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/filter"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// memLedger serializes Consume the way the row lock does in Postgres
type memLedger struct {
	mu   sync.Mutex
	keys map[string]*models.LicenseKey
}

func newMemLedger() *memLedger {
	return &memLedger{keys: make(map[string]*models.LicenseKey)}
}

func (l *memLedger) give(userID string, total, remaining int) {
	owner := userID
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[userID] = &models.LicenseKey{
		ID:             "key-" + userID,
		KeyValue:       "ABCD-EFGH-IJKL-MNOP",
		TotalUnits:     total,
		RemainingUnits: remaining,
		OwnerID:        &owner,
	}
}

func (l *memLedger) remaining(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[userID].RemainingUnits
}

func (l *memLedger) FundedKey(_ context.Context, userID string) (*models.LicenseKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.keys[userID]
	if !ok {
		return nil, quota.ErrNoLicense
	}
	copied := *key
	return &copied, nil
}

func (l *memLedger) Consume(_ context.Context, userID string, fn func(key *models.LicenseKey) (int, error)) (*models.LicenseKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, ok := l.keys[userID]
	if !ok {
		return nil, quota.ErrNoLicense
	}
	if err := quota.CheckFunded(key); err != nil {
		return key, err
	}

	snapshot := *key
	requested, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if requested > key.RemainingUnits {
		return nil, errors.New("debit exceeds remaining")
	}
	if _, err := quota.Debit(key, requested); err != nil {
		return nil, err
	}
	copied := *key
	return &copied, nil
}

type staticDatasets struct {
	ds *models.Dataset
}

func (s staticDatasets) ActiveDataset(context.Context) (*models.Dataset, error) {
	if s.ds == nil {
		return nil, database.ErrNotFound
	}
	return s.ds, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.ExportEvent
}

func (p *recordingPublisher) PublishExportEvent(_ context.Context, ev *models.ExportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []*models.ExportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.ExportEvent(nil), p.events...)
}

type countingCounter struct {
	mu    sync.Mutex
	count map[string]int64
}

func (c *countingCounter) IncrementExportsToday(_ context.Context, userID string, _ time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = make(map[string]int64)
	}
	c.count[userID]++
	return c.count[userID], nil
}

type fixture struct {
	svc       *Service
	ledger    *memLedger
	publisher *recordingPublisher
	counter   *countingCounter
	exportDir string
}

func seedDataset(t *testing.T, batches ...dataset.SeedOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cnpj.db")
	for _, opts := range batches {
		require.NoError(t, dataset.Seed(context.Background(), path, opts))
	}
	return path
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()
	exportDir := t.TempDir()
	f := &fixture{
		ledger:    newMemLedger(),
		publisher: &recordingPublisher{},
		counter:   &countingCounter{},
		exportDir: exportDir,
	}
	f.svc = NewService(
		Config{SearchLimit: 100},
		f.ledger,
		staticDatasets{ds: &models.Dataset{ID: "ds-1", Path: path, IsActive: true}},
		dataset.NewExecutor(dataset.Config{}),
		export.NewMaterializer(exportDir),
		logging.NewNopLogger(),
	)
	f.svc.SetPublisher(f.publisher)
	f.svc.SetExportCounter(f.counter)
	return f
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func spFilter() models.FilterSpec {
	return models.FilterSpec{{Field: "uf", Pattern: "SP"}}
}

func mixedDataset(t *testing.T) string {
	return seedDataset(t,
		dataset.SeedOptions{Rows: 37, Seed: 1, States: []string{"SP"}},
		dataset.SeedOptions{Rows: 63, Seed: 2, States: []string{"RJ", "MG"}},
	)
}

func TestExportDebitsMatchedRows(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 1000, 1000)

	res, err := f.svc.Export(context.Background(), "u1", Request{
		Filters: spFilter(),
		Columns: []string{"cnpj_basico", "razao_social", "uf"},
	})
	require.NoError(t, err)
	defer res.Artifact.Cleanup()

	assert.Equal(t, 963, res.RemainingLeads)
	assert.Equal(t, 963, f.ledger.remaining("u1"))
	assert.Equal(t, 37, res.Artifact.Rows)
	assert.Equal(t, models.ExportFormatCSV, res.Artifact.Format)

	records := readCSV(t, res.Artifact.Path)
	require.Len(t, records, 38)
	assert.Equal(t, []string{"cnpj_basico", "razao_social", "uf"}, records[0])
	for _, row := range records[1:] {
		assert.Equal(t, "SP", row[2])
	}

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ExportKindExport, events[0].Kind)
	assert.Equal(t, 37, events[0].Rows)
	assert.Equal(t, 963, events[0].RemainingAfter)
	assert.Equal(t, "ds-1", events[0].DatasetID)
	assert.Equal(t, int64(1), f.counter.count["u1"])
}

func TestExportCapsAtRemainingUnits(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 1000, 5)

	res, err := f.svc.Export(context.Background(), "u1", Request{Filters: spFilter(), Format: models.ExportFormatXLSX})
	require.NoError(t, err)
	defer res.Artifact.Cleanup()

	assert.Equal(t, 5, res.Artifact.Rows)
	assert.Equal(t, 0, res.RemainingLeads)
	assert.Equal(t, models.ExportFormatXLSX, res.Artifact.Format)
	assert.FileExists(t, res.Artifact.Path)
}

func TestExportWithoutUnitsIsRejected(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 1000, 0)

	_, err := f.svc.Export(context.Background(), "u1", Request{Filters: spFilter()})
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrInsufficientQuota)
	assert.ErrorIs(t, err, quota.ErrQuota)

	entries, err := os.ReadDir(f.exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.publisher.all())
}

func TestExportWithoutKeyIsRejected(t *testing.T) {
	f := newFixture(t, mixedDataset(t))

	_, err := f.svc.Export(context.Background(), "nobody", Request{})
	assert.ErrorIs(t, err, quota.ErrNoLicense)
}

func TestExportEmptyResultDoesNotDebit(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 100)

	_, err := f.svc.Export(context.Background(), "u1", Request{Filters: models.FilterSpec{{Field: "uf", Pattern: "AM"}}})
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 100, f.ledger.remaining("u1"))

	entries, err := os.ReadDir(f.exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.publisher.all())
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 100)

	_, err := f.svc.Export(context.Background(), "u1", Request{Format: "pdf"})
	assert.ErrorIs(t, err, export.ErrUnsupportedFormat)
	assert.Equal(t, 100, f.ledger.remaining("u1"))
}

func TestInvalidFieldIsRejectedBeforeQuery(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 100)

	_, err := f.svc.Export(context.Background(), "u1", Request{
		Filters: models.FilterSpec{{Field: "uf; DROP TABLE empresas", Pattern: "SP"}},
	})
	var invalid *filter.InvalidFieldError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, filter.RoleFilter, invalid.Role)

	_, err = f.svc.Search(context.Background(), "u1", Request{Columns: []string{"senha"}})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, filter.RoleColumn, invalid.Role)

	assert.Equal(t, 100, f.ledger.remaining("u1"))
}

func TestConcurrentExportsNeverOverspend(t *testing.T) {
	path := seedDataset(t,
		dataset.SeedOptions{Rows: 8, Seed: 1, States: []string{"SP"}},
		dataset.SeedOptions{Rows: 20, Seed: 2, States: []string{"RJ"}},
	)
	f := newFixture(t, path)
	f.ledger.give("u1", 10, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Export(context.Background(), "u1", Request{Filters: spFilter()})
			if err != nil {
				return
			}
			defer res.Artifact.Cleanup()
			mu.Lock()
			delivered += res.Artifact.Rows
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, delivered)
	assert.Equal(t, 0, f.ledger.remaining("u1"))
}

func TestSearchDebitsReturnedRows(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 100)

	res, err := f.svc.Search(context.Background(), "u1", Request{Filters: spFilter(), Columns: []string{"cnpj_basico", "uf"}})
	require.NoError(t, err)

	assert.Equal(t, defaultSearchLimit, res.Count)
	assert.Len(t, res.Results, defaultSearchLimit)
	assert.Equal(t, 90, res.RemainingLeads)
	assert.Equal(t, "SP", res.Results[0]["uf"])

	// searches are not counted as exports
	assert.Zero(t, f.counter.count["u1"])
	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ExportKindSearch, events[0].Kind)
}

func TestSearchLimitIsCapped(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.svc.config.SearchLimit = 20
	f.ledger.give("u1", 1000, 1000)

	res, err := f.svc.Search(context.Background(), "u1", Request{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Count)
	assert.Equal(t, 980, res.RemainingLeads)
}

func TestPreviewNeverDebits(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 100)

	res, err := f.svc.Preview(context.Background(), "u1", Request{Filters: spFilter()})
	require.NoError(t, err)
	assert.Equal(t, 37, res.Count)
	assert.Equal(t, 37, res.PreviewCount)

	res, err = f.svc.Preview(context.Background(), "u1", Request{})
	require.NoError(t, err)
	assert.Equal(t, filter.PreviewRows, res.PreviewCount)
	assert.Len(t, res.Results, filter.PreviewRows)
	assert.Equal(t, 100, res.Count)

	assert.Equal(t, 100, f.ledger.remaining("u1"))
	assert.Empty(t, f.publisher.all())
}

func TestPreviewRequiresUnits(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 0)

	_, err := f.svc.Preview(context.Background(), "u1", Request{})
	assert.ErrorIs(t, err, quota.ErrInsufficientQuota)
}

func TestQuickExportUsesPreset(t *testing.T) {
	path := seedDataset(t,
		dataset.SeedOptions{Rows: 6, Seed: 1, Situations: []string{"02"}},
		dataset.SeedOptions{Rows: 9, Seed: 2, Situations: []string{"08"}},
	)
	f := newFixture(t, path)
	f.ledger.give("u1", 100, 100)

	res, err := f.svc.QuickExport(context.Background(), "u1", "")
	require.NoError(t, err)
	defer res.Artifact.Cleanup()

	assert.Equal(t, 6, res.Artifact.Rows)
	assert.Equal(t, 94, res.RemainingLeads)
	assert.Contains(t, res.Artifact.Filename, export.PrefixQuickExport)

	records := readCSV(t, res.Artifact.Path)
	assert.Equal(t, QuickExportColumns, records[0])

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ExportKindQuickExport, events[0].Kind)
}

func TestResolveFallsBackToDefaultPath(t *testing.T) {
	path := mixedDataset(t)
	svc := NewService(
		Config{DefaultPath: path},
		newMemLedger(),
		staticDatasets{},
		dataset.NewExecutor(dataset.Config{}),
		export.NewMaterializer(t.TempDir()),
		logging.NewNopLogger(),
	)

	got, err := svc.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, got.Path)
	assert.Empty(t, got.DatasetID)

	cat, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.True(t, cat.Len() > 5)
}

func TestResolveWithoutDataset(t *testing.T) {
	svc := NewService(
		Config{},
		newMemLedger(),
		staticDatasets{},
		dataset.NewExecutor(dataset.Config{}),
		export.NewMaterializer(t.TempDir()),
		logging.NewNopLogger(),
	)

	_, err := svc.resolve(context.Background())
	assert.ErrorIs(t, err, dataset.ErrNoDataset)

	cat, err := svc.Catalog(context.Background())
	assert.ErrorIs(t, err, dataset.ErrNoDataset)
	assert.NotNil(t, cat)
}

func TestUnreadableDatasetIsReportedAsDatasetError(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "missing.db"))
	f.ledger.give("u1", 100, 100)

	for name, req := range map[string]Request{
		"default columns":   {},
		"catalog field":     {Filters: models.FilterSpec{{Field: "municipio", Pattern: "Campinas"}}},
		"catalog column":    {Columns: []string{"cnpj_basico", "municipio"}},
		"filter and column": {Filters: spFilter(), Columns: []string{"bairro"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Export(context.Background(), "u1", req)

			var dsErr *dataset.DatasetError
			require.ErrorAs(t, err, &dsErr)
			var invalid *filter.InvalidFieldError
			assert.False(t, errors.As(err, &invalid))
		})
	}

	// unknown fields are still rejected as bad input
	_, err := f.svc.Export(context.Background(), "u1", Request{Columns: []string{"senha"}})
	var invalid *filter.InvalidFieldError
	assert.ErrorAs(t, err, &invalid)

	assert.Equal(t, 100, f.ledger.remaining("u1"))
}

func TestCatalogFallsBackToMinimalOnUnreadableDataset(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "missing.db"))

	cat, err := f.svc.Catalog(context.Background())
	require.NoError(t, err)
	_, ok := cat.Lookup("municipio")
	assert.False(t, ok)
	assert.True(t, cat.Len() > 0)
}

func TestExportCorruptDatasetRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cnpj.db")
	require.NoError(t, os.WriteFile(path, []byte("cnpj_basico;razao_social\n12345678;ACME\n"), 0o644))

	f := newFixture(t, path)
	f.ledger.give("u1", 100, 40)

	_, err := f.svc.Export(context.Background(), "u1", Request{Filters: spFilter()})
	var dsErr *dataset.DatasetError
	require.ErrorAs(t, err, &dsErr)

	assert.Equal(t, 40, f.ledger.remaining("u1"))
	entries, err := os.ReadDir(f.exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.publisher.all())
	assert.Zero(t, f.counter.count["u1"])
}

func TestExportMaterializationFailureRollsBack(t *testing.T) {
	f := newFixture(t, mixedDataset(t))
	f.ledger.give("u1", 100, 40)

	// a regular file where the export directory should be
	blocked := filepath.Join(t.TempDir(), "exports")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	f.svc.materializer = export.NewMaterializer(blocked)

	_, err := f.svc.Export(context.Background(), "u1", Request{Filters: spFilter()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to materialize export")

	assert.Equal(t, 40, f.ledger.remaining("u1"))
	assert.Empty(t, f.publisher.all())
	assert.Zero(t, f.counter.count["u1"])

	info, err := os.Stat(blocked)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}
