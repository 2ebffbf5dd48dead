package models

import (
	"time"
)

// Dataset is an uploaded CNPJ database file that can be queried
type Dataset struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Path       string    `json:"path" db:"path"`
	ObjectKey  string    `json:"object_key,omitempty" db:"object_key"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// DatasetStats summarizes the contents of a dataset for the dashboard
type DatasetStats struct {
	TotalCompanies      int64            `json:"total_companies" yaml:"total_companies"`
	StateDistribution   map[string]int64 `json:"state_distribution" yaml:"state_distribution"`
	SimplesDistribution SimplesSplit     `json:"simples_distribution" yaml:"simples_distribution"`
}

// SimplesSplit counts companies by Simples Nacional option
type SimplesSplit struct {
	Optante    int64 `json:"optante" yaml:"optante"`
	NaoOptante int64 `json:"nao_optante" yaml:"nao_optante"`
}

// DashboardStats is the payload of the user dashboard
type DashboardStats struct {
	LeadsRemaining int           `json:"leads_remaining"`
	TotalLeads     int           `json:"total_leads"`
	PlanType       string        `json:"plan_type,omitempty"`
	ExportsToday   int64         `json:"exports_today"`
	SavedFilters   int           `json:"saved_filters"`
	Dataset        *DatasetStats `json:"dataset,omitempty"`
}

// Overview is the payload of the admin dashboard
type Overview struct {
	TotalUsers    int      `json:"total_users"`
	TotalKeys     int      `json:"total_keys"`
	BoundKeys     int      `json:"active_keys"`
	ActiveDataset *Dataset `json:"active_dataset,omitempty"`
}
