// Package export writes query results into single-use CSV or XLSX files.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// Filename prefixes
const (
	PrefixExport      = "dados_exportados"
	PrefixQuickExport = "empresas_ativas"
)

// SheetName is the worksheet holding exported rows
const SheetName = "Leads"

var contentTypes = map[string]string{
	models.ExportFormatCSV:  "text/csv; charset=utf-8",
	models.ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ErrUnsupportedFormat is returned for formats other than csv and xlsx
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Artifact is a materialized file living in its own temporary directory
type Artifact struct {
	Dir         string
	Path        string
	Filename    string
	ContentType string
	Format      string
	Rows        int
	Size        int64
}

// Cleanup removes the artifact and its directory
func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Materializer creates artifacts under a base temporary directory
type Materializer struct {
	baseDir string
	now     func() time.Time
}

// NewMaterializer creates a materializer. An empty baseDir uses the OS default.
func NewMaterializer(baseDir string) *Materializer {
	return &Materializer{baseDir: baseDir, now: time.Now}
}

// Materialize writes result in format. The header row carries the field ids.
// Nothing is left on disk when an error is returned.
func (m *Materializer) Materialize(ctx context.Context, result *models.QueryResult, format, prefix string) (*Artifact, error) {
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(m.baseDir, "export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.%s", prefix, m.now().Format("20060102_150405"), format)
	artifact := &Artifact{
		Dir:         dir,
		Path:        filepath.Join(dir, filename),
		Filename:    filename,
		ContentType: contentType,
		Format:      format,
		Rows:        result.Len(),
	}

	switch format {
	case models.ExportFormatCSV:
		err = writeCSV(artifact.Path, result)
	case models.ExportFormatXLSX:
		err = writeXLSX(artifact.Path, result)
	}
	if err != nil {
		_ = artifact.Cleanup()
		return nil, err
	}

	info, err := os.Stat(artifact.Path)
	if err != nil {
		_ = artifact.Cleanup()
		return nil, fmt.Errorf("failed to stat export: %w", err)
	}
	artifact.Size = info.Size()

	return artifact, nil
}

func writeCSV(path string, result *models.QueryResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(result.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.WriteAll(result.Rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}

	return file.Sync()
}

func writeXLSX(path string, result *models.QueryResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	if err := sw.SetRow("A1", toCells(result.Columns)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range result.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save xlsx: %w", err)
	}
	return nil
}

// toCells keeps every value as text so identifiers like 00012345 survive
func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
