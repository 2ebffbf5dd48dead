package models

import (
	"time"
)

// LicenseKey binds an allotment of exportable leads to at most one user
type LicenseKey struct {
	ID             string     `json:"id" db:"id"`
	KeyValue       string     `json:"key_value" db:"key_value"`
	TotalUnits     int        `json:"total_units" db:"total_units"`
	RemainingUnits int        `json:"remaining_units" db:"remaining_units"`
	OwnerID        *string    `json:"owner_id,omitempty" db:"owner_id"`
	MergedInto     *string    `json:"merged_into,omitempty" db:"merged_into"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty" db:"activated_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsBound reports whether the key has been activated by a user
func (k *LicenseKey) IsBound() bool {
	return k.OwnerID != nil && *k.OwnerID != ""
}

// IsMerged reports whether the key's units were folded into another key
func (k *LicenseKey) IsMerged() bool {
	return k.MergedInto != nil && *k.MergedInto != ""
}

// Plan tiers derived from a key's total units
const (
	PlanBasic        = "basic"
	PlanStandard     = "standard"
	PlanProfessional = "professional"
	PlanPremium      = "premium"
)

// LeadBalance is the user-facing view of a funded key
type LeadBalance struct {
	RemainingUnits int    `json:"remaining_leads"`
	TotalUnits     int    `json:"total_leads"`
	Plan           string `json:"plan_type,omitempty"`
}
