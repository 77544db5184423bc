package ledger

import "time"

// Transaction is an append-only ledger row authorizing a wallet mutation.
//
// Invariants:
// - Rows are never deleted (audit trail).
// - Status moves PENDING -> SUCCESS or PENDING -> FAILED exactly once.
// - AutoSaveApplied is true iff a linked DEPOSIT row exists.
//
// Provider-specific identifiers (gateway order/payment ids, signature) are
// stored as dedicated columns, not mixed into Metadata.
type Transaction struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Type        Type   `json:"type" db:"type"`
	AmountMinor int64  `json:"amount_minor" db:"amount_minor"`
	Status      Status `json:"status" db:"status"`

	GatewayOrderID   string `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	GatewaySignature string `json:"gateway_signature,omitempty" db:"gateway_signature"`

	AutoSaveAmountMinor int64 `json:"auto_save_amount_minor" db:"auto_save_amount_minor"`
	AutoSaveApplied     bool  `json:"auto_save_applied" db:"auto_save_applied"`

	// LinkedTransactionID ties a DEPOSIT to its PAYMENT, and a refund
	// reversal WITHDRAWAL to the PAYMENT it compensates.
	LinkedTransactionID string `json:"linked_transaction_id,omitempty" db:"linked_transaction_id"`

	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Metadata is optional JSON for audit/debug (store as JSONB in Postgres).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Type string

const (
	TypePayment    Type = "PAYMENT"    // external payment settled via the gateway
	TypeDeposit    Type = "DEPOSIT"    // auto-save credit skimmed off a payment
	TypeWithdrawal Type = "WITHDRAWAL" // wallet debit (e.g. refund reversal)
	TypeInvestment Type = "INVESTMENT" // wallet debit into an investment
	TypeRedemption Type = "REDEMPTION" // redemption proceeds credited back
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// validTransitions encodes the one-way status machine.
// PENDING is the only non-terminal status.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusSuccess, StatusFailed},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Direction returns the signed multiplier this row applies to the wallet
// balance: +1 for credits, -1 for debits. Used by the balance invariant
// check: balance == sum(amount * direction) over SUCCESS rows.
func (t Transaction) Direction() int64 {
	switch t.Type {
	case TypeDeposit, TypeRedemption:
		return 1
	case TypeInvestment, TypeWithdrawal:
		return -1
	default:
		// PAYMENT settles outside the wallet; the wallet effect is its
		// linked DEPOSIT row.
		return 0
	}
}
