package storage

import (
	"testing"
)

func TestGetContentType(t *testing.T) {
	tests := []struct {
		filePath string
		wantType string
	}{
		{"cnpj.db", "application/vnd.sqlite3"},
		{"CNPJ.SQLITE", "application/vnd.sqlite3"},
		{"cnpj.sqlite3", "application/vnd.sqlite3"},
		{"cnpj.db.gz", "application/gzip"},
		{"cnpj.zip", "application/zip"},
		{"unknown.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			contentType := getContentType(tt.filePath)
			if contentType != tt.wantType {
				t.Errorf("getContentType(%q) = %q, want %q", tt.filePath, contentType, tt.wantType)
			}
		})
	}
}

func TestDatasetObjectKey(t *testing.T) {
	tests := []struct {
		datasetID string
		filename  string
		want      string
	}{
		{"ds-1", "/var/lib/cnpjleads/datasets/cnpj.db", "datasets/ds-1/cnpj.db"},
		{"ds-2", "cnpj.db", "datasets/ds-2/cnpj.db"},
		{"ds-3", "", "datasets/ds-3/dataset.db"},
	}

	for _, tt := range tests {
		if got := DatasetObjectKey(tt.datasetID, tt.filename); got != tt.want {
			t.Errorf("DatasetObjectKey(%q, %q) = %q, want %q", tt.datasetID, tt.filename, got, tt.want)
		}
	}
}
