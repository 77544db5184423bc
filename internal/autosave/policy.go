package autosave

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidPolicy = errors.New("autosave: invalid policy")

// Policy is a user's auto-save configuration.
//
// It is passed explicitly into Evaluate; nothing here is process-wide
// mutable state. Settings changes affect only orders created afterwards.
type Policy struct {
	UserID  string `json:"user_id" db:"user_id"`
	Enabled bool   `json:"enabled" db:"enabled"`

	// Percentage of the payment amount to skim, e.g. 20 or 12.5.
	Percentage float64 `json:"percentage" db:"percentage"`

	// MinTransactionMinor is the smallest payment that triggers auto-save.
	MinTransactionMinor int64 `json:"min_transaction_minor" db:"min_transaction_minor"`

	// MaxPerTransactionMinor caps the skim per payment. 0 means no cap.
	MaxPerTransactionMinor int64 `json:"max_per_transaction_minor" db:"max_per_transaction_minor"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Valid reports whether the policy settings are acceptable.
func (p Policy) Valid() bool {
	if p.Percentage < 0 || p.Percentage > 100 {
		return false
	}
	if p.MinTransactionMinor < 0 || p.MaxPerTransactionMinor < 0 {
		return false
	}
	return true
}

var hundred = decimal.NewFromInt(100)

// Evaluate returns the auto-save amount for a payment.
//
// Pure and deterministic: it is computed once at order creation and the
// stored result is what settlement applies, so policy edits between the
// two cannot cause drift.
//
// Rounding is half away from zero to the nearest minor unit.
func Evaluate(amountMinor int64, p Policy) int64 {
	if !p.Enabled || amountMinor <= 0 {
		return 0
	}
	if p.Percentage <= 0 {
		return 0
	}
	if amountMinor < p.MinTransactionMinor {
		return 0
	}

	save := decimal.NewFromInt(amountMinor).
		Mul(decimal.NewFromFloat(p.Percentage)).
		Div(hundred).
		Round(0).
		IntPart()

	if p.MaxPerTransactionMinor > 0 && save > p.MaxPerTransactionMinor {
		save = p.MaxPerTransactionMinor
	}
	if save < 0 {
		return 0
	}
	return save
}
