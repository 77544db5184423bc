package invest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is an investable instrument priced by a daily NAV.
// Append-only configuration; rows are deactivated, never deleted.
type Product struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Category  string `json:"category" db:"category"`
	RiskLevel string `json:"risk_level" db:"risk_level"`

	MinInvestmentMinor int64 `json:"min_investment_minor" db:"min_investment_minor"`

	// ExitLoadPercent is deducted from redemption proceeds, e.g. 1 for 1%.
	ExitLoadPercent float64 `json:"exit_load_percent" db:"exit_load_percent"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	RiskLevelLow      = "low"
	RiskLevelModerate = "moderate"
	RiskLevelHigh     = "high"
)

// NavQuote is one day's per-unit price for a product.
// (ProductID, Date) is unique; a quote is immutable once a later date exists.
// Nav is expressed in minor currency units per unit.
type NavQuote struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Date      time.Time       `json:"date" db:"date"` // date-only, UTC midnight
	Nav       decimal.Decimal `json:"nav" db:"nav"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Investment is a user's holding in a product.
//
// Invariants:
// - Units >= 0, and Status == REDEEMED iff Units == 0.
// - AmountInvestedMinor is the original cost basis; it never changes.
// - Rows are created on purchase, mutated only by redemption, never deleted.
type Investment struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	ProductID string `json:"product_id" db:"product_id"`

	AmountInvestedMinor int64           `json:"amount_invested_minor" db:"amount_invested_minor"`
	Units               decimal.Decimal `json:"units" db:"units"`
	PurchaseNav         decimal.Decimal `json:"purchase_nav" db:"purchase_nav"`

	Status Status `json:"status" db:"status"`

	PurchaseDate   time.Time  `json:"purchase_date" db:"purchase_date"`
	RedemptionDate *time.Time `json:"redemption_date,omitempty" db:"redemption_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusPartialRedeemed Status = "PARTIAL_REDEEMED"
	StatusRedeemed        Status = "REDEEMED"
)

// Redeemable reports whether the holding still has units to redeem.
func (i Investment) Redeemable() bool {
	return i.Status == StatusActive || i.Status == StatusPartialRedeemed
}

// unitPrecision is the number of fractional digits kept on unit counts.
// The division amount/nav is decimal, rounded half away from zero; no
// silent float loss.
const unitPrecision = 4

// UnitsFor converts a purchase amount into units at the given NAV.
func UnitsFor(amountMinor int64, nav decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(amountMinor).Div(nav).Round(unitPrecision)
}

// ValueOf converts units back into minor currency at the given NAV,
// rounded to the nearest minor unit.
func ValueOf(units, nav decimal.Decimal) int64 {
	return units.Mul(nav).Round(0).IntPart()
}

// ExitLoad computes the exit-load fee on gross proceeds, rounded to the
// nearest minor unit.
func ExitLoad(grossMinor int64, exitLoadPercent float64) int64 {
	if exitLoadPercent <= 0 || grossMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(grossMinor).
		Mul(decimal.NewFromFloat(exitLoadPercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
