package wallet

import (
	"errors"
	"time"
)

// Wallet is the single source of truth for a user's money.
//
// Money invariants:
//   - BalanceMinor must always equal the signed sum of SUCCESS ledger rows
//     for the user.
//   - No field here is ever mutated outside an atomic unit that also writes
//     the authorizing ledger transaction.
//   - All amounts are int64 minor units (1 major unit = 100 minor units).
type Wallet struct {
	UserID string `json:"user_id" db:"user_id"`

	BalanceMinor        int64 `json:"balance_minor" db:"balance_minor"`
	TotalSavedMinor     int64 `json:"total_saved_minor" db:"total_saved_minor"`
	TotalInvestedMinor  int64 `json:"total_invested_minor" db:"total_invested_minor"`
	TotalWithdrawnMinor int64 `json:"total_withdrawn_minor" db:"total_withdrawn_minor"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counter selects which running total moves together with the balance.
type Counter string

const (
	// CounterNone moves the balance only.
	CounterNone Counter = ""
	// CounterSaved tracks auto-save credits.
	CounterSaved Counter = "saved"
	// CounterInvested tracks money moved into investments.
	CounterInvested Counter = "invested"
	// CounterWithdrawn tracks redemption proceeds returned to the wallet.
	CounterWithdrawn Counter = "withdrawn"
)

var (
	ErrInvalidAmount       = errors.New("wallet: amount must be positive")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
)

// ApplyCredit adds amount to the balance and bumps the selected counter.
// Callers must hold the wallet inside an atomic unit.
func (w *Wallet) ApplyCredit(amountMinor int64, counter Counter, now time.Time) error {
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	w.BalanceMinor += amountMinor
	w.bump(counter, amountMinor)
	w.UpdatedAt = now
	return nil
}

// ApplyDebit removes amount from the balance and bumps the selected counter.
// The balance check and the mutation are one step; callers must hold the
// wallet row locked so two concurrent debits cannot both pass the check.
func (w *Wallet) ApplyDebit(amountMinor int64, counter Counter, now time.Time) error {
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	if w.BalanceMinor < amountMinor {
		return ErrInsufficientBalance
	}
	w.BalanceMinor -= amountMinor
	w.bump(counter, amountMinor)
	w.UpdatedAt = now
	return nil
}

// ReverseSaved unwinds a previously applied auto-save credit (refund path).
// Unlike ApplyDebit it decrements the saved counter instead of bumping one.
//
// A reversal larger than TotalSavedMinor means the counter has drifted
// from the ledger; the counter is clamped at zero and drifted reports it
// so the caller can flag the wallet.
func (w *Wallet) ReverseSaved(amountMinor int64, now time.Time) (drifted bool, err error) {
	if amountMinor <= 0 {
		return false, ErrInvalidAmount
	}
	if w.BalanceMinor < amountMinor {
		return false, ErrInsufficientBalance
	}
	w.BalanceMinor -= amountMinor
	w.TotalSavedMinor -= amountMinor
	if w.TotalSavedMinor < 0 {
		w.TotalSavedMinor = 0
		drifted = true
	}
	w.UpdatedAt = now
	return drifted, nil
}

func (w *Wallet) bump(counter Counter, amountMinor int64) {
	switch counter {
	case CounterSaved:
		w.TotalSavedMinor += amountMinor
	case CounterInvested:
		w.TotalInvestedMinor += amountMinor
	case CounterWithdrawn:
		w.TotalWithdrawnMinor += amountMinor
	}
}
