package models

// QueryResult is an ordered, bounded table of rows returned by a dataset query
type QueryResult struct {
	Columns []string   `json:"columns"`
	Labels  []string   `json:"labels,omitempty"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of rows
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Truncate keeps at most n rows
func (r *QueryResult) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(r.Rows) {
		r.Rows = r.Rows[:n]
	}
}

// Records returns the rows as field id to value mappings
func (r *QueryResult) Records() []map[string]string {
	records := make([]map[string]string, 0, r.Len())
	if r == nil {
		return records
	}
	for _, row := range r.Rows {
		rec := make(map[string]string, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

// ValidExportFormat reports whether format names a supported file type
func ValidExportFormat(format string) bool {
	return format == ExportFormatCSV || format == ExportFormatXLSX
}
