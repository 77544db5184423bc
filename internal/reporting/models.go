package reporting

import (
	"savings-platform/internal/invest"
	"savings-platform/internal/ledger"
)

// WalletSummary mirrors the wallet row for read-only display.
type WalletSummary struct {
	UserID              string `json:"user_id"`
	BalanceMinor        int64  `json:"balance_minor"`
	TotalSavedMinor     int64  `json:"total_saved_minor"`
	TotalInvestedMinor  int64  `json:"total_invested_minor"`
	TotalWithdrawnMinor int64  `json:"total_withdrawn_minor"`
}

// Holding is one investment valued at the latest available NAV.
type Holding struct {
	Investment invest.Investment `json:"investment"`

	ProductName string `json:"product_name"`

	// CurrentNav is the quote used for valuation, as a decimal string.
	CurrentNav        string `json:"current_nav"`
	CurrentValueMinor int64  `json:"current_value_minor"`

	// Returns compare current value against the remaining units at
	// their purchase NAV, so partial redemptions do not skew them.
	CostBasisMinor int64   `json:"cost_basis_minor"`
	ReturnsMinor   int64   `json:"returns_minor"`
	ReturnsPercent float64 `json:"returns_percent"`
}

// PortfolioSummary aggregates all non-redeemed holdings.
type PortfolioSummary struct {
	UserID            string    `json:"user_id"`
	Holdings          []Holding `json:"holdings"`
	CostBasisMinor    int64     `json:"cost_basis_minor"`
	CurrentValueMinor int64     `json:"current_value_minor"`
	ReturnsMinor      int64     `json:"returns_minor"`
}

// LedgerHistory is a newest-first page of the user's transactions.
type LedgerHistory struct {
	UserID       string               `json:"user_id"`
	Transactions []ledger.Transaction `json:"transactions"`
}
