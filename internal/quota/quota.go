// Package quota holds the lead-unit arithmetic of license keys. The
// transactional store lives in internal/database; everything here is pure.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

var (
	// ErrQuota is the root of every quota failure
	ErrQuota = errors.New("quota error")
	// ErrNoLicense means the user holds no funded key
	ErrNoLicense = fmt.Errorf("%w: no active license key", ErrQuota)
	// ErrInsufficientQuota means the funded key has no units left
	ErrInsufficientQuota = fmt.Errorf("%w: insufficient lead units", ErrQuota)

	// ErrKeyAlreadyBound is returned when activating a key someone owns
	ErrKeyAlreadyBound = errors.New("license key already activated")
	// ErrInvalidAmount rejects non-positive top-ups and key sizes
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Plan tier thresholds on a key's total units
const (
	PremiumThreshold      = 50000
	ProfessionalThreshold = 10000
	StandardThreshold     = 2000
)

// Ledger is the transactional store of license keys
type Ledger interface {
	// Consume locks the user's funded key, calls fn with it and debits the
	// count fn returns, atomically. An error from fn rolls everything back.
	Consume(ctx context.Context, userID string, fn func(key *models.LicenseKey) (int, error)) (*models.LicenseKey, error)
	// FundedKey returns the user's funded key without locking it
	FundedKey(ctx context.Context, userID string) (*models.LicenseKey, error)
}

// CheckFunded verifies a key can pay for at least one row
func CheckFunded(key *models.LicenseKey) error {
	if key == nil {
		return ErrNoLicense
	}
	if key.RemainingUnits <= 0 {
		return ErrInsufficientQuota
	}
	return nil
}

// Cap returns how many of requested rows the key can pay for
func Cap(key *models.LicenseKey, requested int) int {
	if key == nil || requested <= 0 || key.RemainingUnits <= 0 {
		return 0
	}
	if requested > key.RemainingUnits {
		return key.RemainingUnits
	}
	return requested
}

// Debit removes min(requested, remaining) units and reports the amount taken
func Debit(key *models.LicenseKey, requested int) (int, error) {
	if err := CheckFunded(key); err != nil {
		return 0, err
	}
	actual := Cap(key, requested)
	key.RemainingUnits -= actual
	return actual, nil
}

// Bind assigns an unowned key to a user
func Bind(key *models.LicenseKey, userID string, now time.Time) error {
	if key.IsBound() {
		return ErrKeyAlreadyBound
	}
	key.OwnerID = &userID
	key.ActivatedAt = &now
	return nil
}

// Merge folds an incoming key into the user's funded primary key. The
// incoming key stays owned by the same user, emptied and marked merged.
func Merge(primary, incoming *models.LicenseKey, now time.Time) error {
	if incoming.IsBound() {
		return ErrKeyAlreadyBound
	}
	if primary.OwnerID == nil {
		return fmt.Errorf("primary key %s has no owner", primary.ID)
	}

	added := incoming.TotalUnits
	primary.TotalUnits += added
	primary.RemainingUnits += added

	owner := *primary.OwnerID
	mergedInto := primary.ID
	incoming.OwnerID = &owner
	incoming.ActivatedAt = &now
	incoming.RemainingUnits = 0
	incoming.MergedInto = &mergedInto
	return nil
}

// Reset restores a key to its full allowance
func Reset(key *models.LicenseKey) {
	key.RemainingUnits = key.TotalUnits
}

// TopUp grows total and remaining together
func TopUp(key *models.LicenseKey, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	key.TotalUnits += amount
	key.RemainingUnits += amount
	return nil
}

// Validate checks 0 <= remaining <= total
func Validate(key *models.LicenseKey) error {
	if key.RemainingUnits < 0 || key.RemainingUnits > key.TotalUnits {
		return fmt.Errorf("key %s: remaining %d outside [0, %d]", key.ID, key.RemainingUnits, key.TotalUnits)
	}
	return nil
}

// PlanFor names the tier of a key's total allowance
func PlanFor(total int) string {
	switch {
	case total >= PremiumThreshold:
		return models.PlanPremium
	case total >= ProfessionalThreshold:
		return models.PlanProfessional
	case total >= StandardThreshold:
		return models.PlanStandard
	default:
		return models.PlanBasic
	}
}

// Balance summarizes a key for API responses
func Balance(key *models.LicenseKey) models.LeadBalance {
	if key == nil {
		return models.LeadBalance{}
	}
	return models.LeadBalance{
		RemainingUnits: key.RemainingUnits,
		TotalUnits:     key.TotalUnits,
		Plan:           PlanFor(key.TotalUnits),
	}
}
