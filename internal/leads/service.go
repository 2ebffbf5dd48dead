// Package leads orchestrates filtered searches, previews and quota-metered
// exports over the active CNPJ dataset.
package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/dataset"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/export"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/filter"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/tracing"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// Request modes, used as metric and log labels
const (
	ModeSearch      = "search"
	ModePreview     = "preview"
	ModeExport      = "export"
	ModeQuickExport = "quick_export"
)

// ErrEmptyResult is returned by exports whose filters matched nothing
var ErrEmptyResult = errors.New("no records match the filters")

// Quick export preset: active companies ("02") with contact columns
var (
	QuickExportFilters = models.FilterSpec{{Field: "situacao_cadastral", Pattern: "02"}}
	QuickExportColumns = []string{
		"cnpj_basico", "razao_social", "nome_fantasia", "uf",
		"telefone_1", "correio_eletronico", "opcao_simples",
	}
)

// defaultSearchLimit applies when a search names no limit
const defaultSearchLimit = 10

// publishTimeout bounds best-effort side channels after a debit
const publishTimeout = 5 * time.Second

// DatasetSource resolves the dataset queries run against
type DatasetSource interface {
	ActiveDataset(ctx context.Context) (*models.Dataset, error)
}

// EventPublisher receives an audit event after every debit
type EventPublisher interface {
	PublishExportEvent(ctx context.Context, ev *models.ExportEvent) error
}

// ExportCounter tracks exports per user per day
type ExportCounter interface {
	IncrementExportsToday(ctx context.Context, userID string, now time.Time) (int64, error)
}

// CatalogCache stores inspected catalogs per dataset
type CatalogCache interface {
	GetCatalog(ctx context.Context, datasetID string) ([]string, bool, error)
	SetCatalog(ctx context.Context, datasetID string, fieldIDs []string, ttl time.Duration) error
}

// Config holds service settings
type Config struct {
	// DefaultPath is queried when no dataset is active
	DefaultPath string
	// SearchLimit caps the rows of a JSON search
	SearchLimit int
	CatalogTTL  time.Duration
}

// Request carries filters and columns of a search or export
type Request struct {
	Filters models.FilterSpec `json:"filters"`
	Columns []string          `json:"columns"`
	Format  string            `json:"format,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

// SearchResult is a debited page of rows
type SearchResult struct {
	Columns        []string            `json:"columns"`
	Results        []map[string]string `json:"results"`
	Count          int                 `json:"count"`
	RemainingLeads int                 `json:"remaining_leads"`
}

// PreviewResult shows at most PreviewRows rows and the total match count
type PreviewResult struct {
	Columns      []string            `json:"columns"`
	Results      []map[string]string `json:"results"`
	Count        int                 `json:"count"`
	PreviewCount int                 `json:"preview_count"`
}

// ExportResult is a debited artifact. The caller must Cleanup the artifact
// once it has been sent.
type ExportResult struct {
	Artifact       *export.Artifact
	RemainingLeads int
}

// Service runs lead queries against the active dataset
type Service struct {
	config       Config
	ledger       quota.Ledger
	datasets     DatasetSource
	executor     *dataset.Executor
	materializer *export.Materializer
	logger       *logging.Logger

	publisher EventPublisher
	counter   ExportCounter
	catalogs  CatalogCache
	stats     StatsCache
	statsTTL  time.Duration

	now func() time.Time
}

// NewService creates a lead service
func NewService(cfg Config, ledger quota.Ledger, datasets DatasetSource, executor *dataset.Executor, materializer *export.Materializer, logger *logging.Logger) *Service {
	if cfg.SearchLimit <= 0 || cfg.SearchLimit > filter.MaxRows {
		cfg.SearchLimit = filter.MaxRows
	}
	return &Service{
		config:       cfg,
		ledger:       ledger,
		datasets:     datasets,
		executor:     executor,
		materializer: materializer,
		logger:       logger,
		now:          time.Now,
	}
}

// SetPublisher enables audit events on the bus
func (s *Service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetExportCounter enables the daily export counter
func (s *Service) SetExportCounter(c ExportCounter) {
	s.counter = c
}

// SetCatalogCache enables catalog caching
func (s *Service) SetCatalogCache(c CatalogCache) {
	s.catalogs = c
}

// target is the dataset snapshot used for the whole request
type target struct {
	DatasetID string
	Path      string
}

// resolve reads the active dataset once per request
func (s *Service) resolve(ctx context.Context) (target, error) {
	ds, err := s.datasets.ActiveDataset(ctx)
	if err == nil {
		return target{DatasetID: ds.ID, Path: ds.Path}, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return target{}, fmt.Errorf("failed to resolve active dataset: %w", err)
	}
	if s.config.DefaultPath != "" {
		return target{Path: s.config.DefaultPath}, nil
	}
	return target{}, &dataset.DatasetError{Op: "resolve", Err: dataset.ErrNoDataset}
}

// Catalog returns the fields available in the active dataset. The catalog is
// never nil, even alongside an error.
func (s *Service) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	t, err := s.resolve(ctx)
	if err != nil {
		return catalog.Minimal(), err
	}
	cat, _ := s.catalogFor(ctx, t)
	return cat, nil
}

// catalogFor returns the inspected catalog of t. When inspection fails it
// returns the minimal catalog together with the inspection error.
func (s *Service) catalogFor(ctx context.Context, t target) (*catalog.Catalog, error) {
	cacheable := s.catalogs != nil && t.DatasetID != ""

	if cacheable {
		ids, found, err := s.catalogs.GetCatalog(ctx, t.DatasetID)
		if err != nil {
			s.logger.WithDatasetID(t.DatasetID).WithError(err).Warn("Catalog cache read failed")
		}
		metrics.RecordCacheAccess("catalog", found)
		if found {
			if cat := catalog.FromIDs(toFieldIDs(ids)); cat.Len() > 0 {
				return cat, nil
			}
		}
	}

	cat, err := s.executor.Catalog(ctx, t.Path)
	if err != nil {
		s.logger.WithDatasetID(t.DatasetID).WithError(err).Warn("Schema inspection failed")
		return cat, err
	}

	if cacheable {
		if err := s.catalogs.SetCatalog(ctx, t.DatasetID, fromFieldIDs(cat.IDs()), s.config.CatalogTTL); err != nil {
			s.logger.WithDatasetID(t.DatasetID).WithError(err).Warn("Catalog cache write failed")
		}
	}
	return cat, nil
}

// queryCatalog is the catalog requests compile against. An unreadable dataset
// gets the full catalog and execution reports the dataset failure.
func (s *Service) queryCatalog(ctx context.Context, t target) *catalog.Catalog {
	cat, err := s.catalogFor(ctx, t)
	if err != nil {
		return catalog.Full()
	}
	return cat
}

// plan is a compiled query bound to a dataset snapshot
type plan struct {
	target  target
	catalog *catalog.Catalog
	query   *filter.Query
}

// prepare checks the user's key, resolves the dataset and compiles the query.
// No rows are read when it fails.
func (s *Service) prepare(ctx context.Context, userID string, spec models.FilterSpec, columns []string, limit int) (*plan, error) {
	key, err := s.ledger.FundedKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := quota.CheckFunded(key); err != nil {
		return nil, err
	}

	t, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	span, _ := tracing.StartSpan(ctx, "leads.compile")
	defer tracing.FinishSpan(span)

	cat := s.queryCatalog(ctx, t)
	q, err := filter.Compile(cat, spec, columns, filter.Options{Limit: limit})
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}
	tracing.SetTag(span, "conditions", len(q.Args))
	return &plan{target: t, catalog: cat, query: q}, nil
}

func (s *Service) execute(ctx context.Context, mode string, p *plan) (*models.QueryResult, error) {
	span, ctx := tracing.StartSpan(ctx, "leads.execute")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "mode", mode)

	start := time.Now()
	result, err := s.executor.Execute(ctx, p.target.Path, p.query)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordQueryFailure(mode)
		s.logger.WithDatasetID(p.target.DatasetID).LogQueryFailure(mode, p.target.Path, err)
		return result, err
	}

	metrics.RecordQuery(mode, time.Since(start).Seconds(), result.Len())
	tracing.SetTag(span, "rows", result.Len())
	return result, nil
}

// Search debits and returns up to the requested number of matching rows
func (s *Service) Search(ctx context.Context, userID string, req Request) (*SearchResult, error) {
	span, ctx := tracing.StartSpan(ctx, "leads.search")
	defer tracing.FinishSpan(span)
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > s.config.SearchLimit {
		limit = s.config.SearchLimit
	}

	p, err := s.prepare(ctx, userID, req.Filters, req.Columns, limit)
	if err != nil {
		return nil, s.fail(span, err)
	}

	var result *models.QueryResult
	key, err := s.ledger.Consume(ctx, userID, func(key *models.LicenseKey) (int, error) {
		res, err := s.execute(ctx, ModeSearch, p)
		if err != nil {
			return 0, err
		}
		res.Truncate(quota.Cap(key, res.Len()))
		result = res
		return res.Len(), nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.afterDebit(ctx, debit{
		userID: userID, key: key, kind: models.ExportKindSearch,
		rows: result.Len(), datasetID: p.target.DatasetID, started: start,
	})

	return &SearchResult{
		Columns:        result.Columns,
		Results:        result.Records(),
		Count:          result.Len(),
		RemainingLeads: key.RemainingUnits,
	}, nil
}

// Preview returns up to PreviewRows rows and the capped match count. It
// requires a funded key but never debits it.
func (s *Service) Preview(ctx context.Context, userID string, req Request) (*PreviewResult, error) {
	span, ctx := tracing.StartSpan(ctx, "leads.preview")
	defer tracing.FinishSpan(span)

	p, err := s.prepare(ctx, userID, req.Filters, req.Columns, filter.PreviewRows)
	if err != nil {
		return nil, s.fail(span, err)
	}

	result, err := s.execute(ctx, ModePreview, p)
	if err != nil {
		return nil, s.fail(span, err)
	}

	count := result.Len()
	if count == filter.PreviewRows {
		// the page is full, count the whole capped match set
		counted, err := s.count(ctx, p, req)
		if err != nil {
			return nil, s.fail(span, err)
		}
		count = counted
	}

	return &PreviewResult{
		Columns:      result.Columns,
		Results:      result.Records(),
		Count:        count,
		PreviewCount: result.Len(),
	}, nil
}

// count compiles the uncapped variant of a preview and counts its rows
func (s *Service) count(ctx context.Context, p *plan, req Request) (int, error) {
	q, err := filter.Compile(p.catalog, req.Filters, req.Columns, filter.Options{})
	if err != nil {
		return 0, err
	}
	n, err := s.executor.Count(ctx, p.target.Path, q)
	if err != nil {
		metrics.RecordQueryFailure(ModePreview)
		s.logger.WithDatasetID(p.target.DatasetID).LogQueryFailure(ModePreview, p.target.Path, err)
		return 0, err
	}
	return n, nil
}

// Export debits min(matches, remaining) units and materializes exactly that
// many rows. The debit commits only once the file is complete.
func (s *Service) Export(ctx context.Context, userID string, req Request) (*ExportResult, error) {
	return s.export(ctx, userID, req, ModeExport, models.ExportKindExport, export.PrefixExport)
}

// QuickExport exports active companies with the preset contact columns
func (s *Service) QuickExport(ctx context.Context, userID, format string) (*ExportResult, error) {
	req := Request{
		Filters: append(models.FilterSpec(nil), QuickExportFilters...),
		Columns: append([]string(nil), QuickExportColumns...),
		Format:  format,
	}
	return s.export(ctx, userID, req, ModeQuickExport, models.ExportKindQuickExport, export.PrefixQuickExport)
}

func (s *Service) export(ctx context.Context, userID string, req Request, mode, kind, prefix string) (*ExportResult, error) {
	span, ctx := tracing.StartSpan(ctx, "leads."+mode)
	defer tracing.FinishSpan(span)
	start := time.Now()

	format := req.Format
	if format == "" {
		format = models.ExportFormatCSV
	}
	if !models.ValidExportFormat(format) {
		return nil, s.fail(span, fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, format))
	}

	p, err := s.prepare(ctx, userID, req.Filters, req.Columns, filter.MaxRows)
	if err != nil {
		return nil, s.fail(span, err)
	}

	var artifact *export.Artifact
	key, err := s.ledger.Consume(ctx, userID, func(key *models.LicenseKey) (int, error) {
		res, err := s.execute(ctx, mode, p)
		if err != nil {
			return 0, err
		}
		if res.Len() == 0 {
			return 0, ErrEmptyResult
		}
		res.Truncate(quota.Cap(key, res.Len()))

		matSpan, matCtx := tracing.StartSpan(ctx, "leads.materialize")
		artifact, err = s.materializer.Materialize(matCtx, res, format, prefix)
		tracing.LogError(matSpan, err)
		tracing.FinishSpan(matSpan)
		if err != nil {
			return 0, fmt.Errorf("failed to materialize export: %w", err)
		}
		return artifact.Rows, nil
	})
	if err != nil {
		// a commit failure must not leave a file behind
		_ = artifact.Cleanup()
		return nil, s.fail(span, err)
	}

	s.afterDebit(ctx, debit{
		userID: userID, key: key, kind: kind, format: format,
		rows: artifact.Rows, bytes: artifact.Size, datasetID: p.target.DatasetID, started: start,
	})

	return &ExportResult{Artifact: artifact, RemainingLeads: key.RemainingUnits}, nil
}

// fail records quota rejections and marks the span failed
func (s *Service) fail(span opentracing.Span, err error) error {
	tracing.LogError(span, err)
	switch {
	case errors.Is(err, quota.ErrNoLicense):
		metrics.RecordQuotaRejection("no_license")
	case errors.Is(err, quota.ErrInsufficientQuota):
		metrics.RecordQuotaRejection("insufficient")
	}
	return err
}
