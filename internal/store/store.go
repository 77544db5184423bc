package store

import (
	"context"
	"errors"

	"savings-platform/internal/autosave"
	"savings-platform/internal/invest"
	"savings-platform/internal/ledger"
	"savings-platform/internal/wallet"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateEvent means the external event id was already claimed;
	// the caller must skip the effect (idempotent replay).
	ErrDuplicateEvent = errors.New("store: duplicate event")

	// ErrConflict means a uniqueness or ordering rule was violated
	// (duplicate order id, NAV older than the latest quote, ...).
	ErrConflict = errors.New("store: conflict")
)

// Reader is the read-only surface, safe outside atomic units.
type Reader interface {
	// GetWallet returns the user's wallet. Users without any money
	// movement yet have no row; callers get ErrNotFound.
	GetWallet(ctx context.Context, userID string) (wallet.Wallet, error)

	GetTransaction(ctx context.Context, id string) (ledger.Transaction, error)
	GetTransactionByOrderID(ctx context.Context, gatewayOrderID string) (ledger.Transaction, error)
	// ListTransactions returns the user's ledger newest-first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error)

	GetProduct(ctx context.Context, productID string) (invest.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]invest.Product, error)

	// LatestNav returns the most recent quote for a product.
	LatestNav(ctx context.Context, productID string) (invest.NavQuote, error)

	GetInvestment(ctx context.Context, id string) (invest.Investment, error)
	ListInvestments(ctx context.Context, userID string) ([]invest.Investment, error)

	GetAutoSavePolicy(ctx context.Context, userID string) (autosave.Policy, error)
}

// Tx is one atomic, serializable unit of work scoped to a single user's
// wallet plus the ledger/investment rows it touches. Implementations must
// guarantee that either every write in the unit persists or none do.
//
// Serialization of concurrent units against the same wallet is the
// implementation's job (row lock in Postgres, mutex in memory), never an
// application-level mutex, because the process is horizontally scaled.
type Tx interface {
	Reader

	// WalletForUpdate locks the user's wallet row for the remainder of
	// the unit, creating a zero wallet if none exists yet.
	WalletForUpdate(ctx context.Context, userID string) (wallet.Wallet, error)
	SaveWallet(ctx context.Context, w wallet.Wallet) error

	InsertTransaction(ctx context.Context, t ledger.Transaction) error
	// UpdateTransaction rewrites a row by id. Callers must have loaded it
	// with TransactionByOrderIDForUpdate (or hold the wallet lock) so the
	// PENDING check and the transition are one serialized step.
	UpdateTransaction(ctx context.Context, t ledger.Transaction) error
	TransactionByOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (ledger.Transaction, error)

	InsertInvestment(ctx context.Context, inv invest.Investment) error
	InvestmentForUpdate(ctx context.Context, id string) (invest.Investment, error)
	UpdateInvestment(ctx context.Context, inv invest.Investment) error

	// ClaimEvent records an external event id (gateway payment id,
	// webhook event id). The insert shares the unit with the effect, so a
	// duplicate delivery fails with ErrDuplicateEvent and applies nothing.
	ClaimEvent(ctx context.Context, eventID string) error
}

// Store is the persistence boundary for the ledger core.
type Store interface {
	Reader

	// Atomic runs fn inside one atomic unit. An error (or panic) from fn
	// aborts the whole unit; no partial writes persist.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Administrative/config writes; each is its own atomic scope.
	CreateProduct(ctx context.Context, p invest.Product) error
	SetProductActive(ctx context.Context, productID string, active bool) error

	// UpsertNav appends a daily quote. At most one quote per product per
	// day, and never older than the latest (ErrConflict otherwise).
	UpsertNav(ctx context.Context, q invest.NavQuote) error

	SaveAutoSavePolicy(ctx context.Context, p autosave.Policy) error
}
