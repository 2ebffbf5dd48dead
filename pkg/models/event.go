package models

import (
	"time"
)

// ExportEvent records a quota debit for auditing
type ExportEvent struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	LicenseKeyID   string    `json:"license_key_id" db:"license_key_id"`
	Kind           string    `json:"kind" db:"kind"`
	Format         string    `json:"format,omitempty" db:"format"`
	Rows           int       `json:"rows" db:"rows"`
	RemainingAfter int       `json:"remaining_after" db:"remaining_after"`
	DatasetID      string    `json:"dataset_id,omitempty" db:"dataset_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ExportEvent kinds
const (
	ExportKindExport      = "export"
	ExportKindQuickExport = "quick_export"
	ExportKindSearch      = "search"
)

// DatasetEvent records an administrative change of the active dataset
type DatasetEvent struct {
	DatasetID string    `json:"dataset_id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DatasetEvent actions
const (
	DatasetActionUploaded  = "uploaded"
	DatasetActionActivated = "activated"
	DatasetActionDeleted   = "deleted"
)
