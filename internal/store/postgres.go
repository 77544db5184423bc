package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"savings-platform/internal/autosave"
	"savings-platform/internal/invest"
	"savings-platform/internal/ledger"
	"savings-platform/internal/wallet"
	"savings-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres implements Store on database/sql with the pgx stdlib driver.
//
// Assumed tables:
//   - wallets
//   - ledger_transactions (append-only; status is the only mutable column
//     besides the gateway correlation fields set at settlement)
//   - investment_products
//   - nav_quotes             UNIQUE (product_id, date)
//   - investments
//   - autosave_policies
//   - processed_events       PRIMARY KEY (event_id)
//
// Concurrency: each Atomic call is one database transaction. The wallet
// row lock (SELECT ... FOR UPDATE) serializes units touching the same
// wallet; units for different wallets do not contend.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

// --- Reader ---

func (p *Postgres) GetWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	return getWallet(ctx, p.db, userID, false)
}

func (p *Postgres) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	const q = selectTransaction + ` WHERE id = $1`
	return scanTransaction(p.db.QueryRowContext(ctx, q, id))
}

func (p *Postgres) GetTransactionByOrderID(ctx context.Context, orderID string) (ledger.Transaction, error) {
	const q = selectTransaction + ` WHERE gateway_order_id = $1`
	return scanTransaction(p.db.QueryRowContext(ctx, q, orderID))
}

func (p *Postgres) ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return listTransactions(ctx, p.db, userID, limit)
}

func (p *Postgres) GetProduct(ctx context.Context, productID string) (invest.Product, error) {
	const q = selectProduct + ` WHERE id = $1`
	return scanProduct(p.db.QueryRowContext(ctx, q, productID))
}

func (p *Postgres) ListProducts(ctx context.Context, activeOnly bool) ([]invest.Product, error) {
	q := selectProduct
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invest.Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestNav(ctx context.Context, productID string) (invest.NavQuote, error) {
	return latestNav(ctx, p.db, productID)
}

func (p *Postgres) GetInvestment(ctx context.Context, id string) (invest.Investment, error) {
	const q = selectInvestment + ` WHERE id = $1`
	return scanInvestment(p.db.QueryRowContext(ctx, q, id))
}

func (p *Postgres) ListInvestments(ctx context.Context, userID string) ([]invest.Investment, error) {
	const q = selectInvestment + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invest.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (p *Postgres) GetAutoSavePolicy(ctx context.Context, userID string) (autosave.Policy, error) {
	return getAutoSavePolicy(ctx, p.db, userID)
}

// --- Admin writes ---

func (p *Postgres) CreateProduct(ctx context.Context, prod invest.Product) error {
	const q = `
INSERT INTO investment_products (
  id, name, category, risk_level, min_investment_minor, exit_load_percent, is_active, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := p.db.ExecContext(ctx, q,
		prod.ID, prod.Name, prod.Category, prod.RiskLevel,
		prod.MinInvestmentMinor, prod.ExitLoadPercent, prod.IsActive,
		prod.CreatedAt, prod.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (p *Postgres) SetProductActive(ctx context.Context, productID string, active bool) error {
	const q = `
UPDATE investment_products SET is_active = $2, updated_at = now() WHERE id = $1
`
	res, err := p.db.ExecContext(ctx, q, productID, active)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertNav(ctx context.Context, quote invest.NavQuote) error {
	day := quote.Date.UTC().Truncate(24 * time.Hour)

	// Reject quotes at or before the latest known date; (product_id, date)
	// uniqueness catches same-day races.
	const q = `
INSERT INTO nav_quotes (product_id, date, nav, created_at)
SELECT $1, $2, $3, $4
WHERE NOT EXISTS (
  SELECT 1 FROM nav_quotes WHERE product_id = $1 AND date >= $2
)
`
	res, err := p.db.ExecContext(ctx, q, quote.ProductID, day, quote.Nav, quote.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) SaveAutoSavePolicy(ctx context.Context, pol autosave.Policy) error {
	const q = `
INSERT INTO autosave_policies (user_id, enabled, percentage, min_transaction_minor, max_per_transaction_minor, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id)
DO UPDATE SET enabled = EXCLUDED.enabled,
              percentage = EXCLUDED.percentage,
              min_transaction_minor = EXCLUDED.min_transaction_minor,
              max_per_transaction_minor = EXCLUDED.max_per_transaction_minor,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		pol.UserID, pol.Enabled, pol.Percentage,
		pol.MinTransactionMinor, pol.MaxPerTransactionMinor, pol.UpdatedAt,
	)
	return err
}

// --- Tx ---

type pgTx struct {
	q *sql.Tx
}

func (t *pgTx) GetWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	return getWallet(ctx, t.q, userID, false)
}

func (t *pgTx) WalletForUpdate(ctx context.Context, userID string) (wallet.Wallet, error) {
	// Create the row lazily so first-credit flows (settlement auto-save)
	// do not need a separate provisioning step.
	const ins = `
INSERT INTO wallets (user_id, balance_minor, total_saved_minor, total_invested_minor, total_withdrawn_minor, created_at, updated_at)
VALUES ($1, 0, 0, 0, 0, now(), now())
ON CONFLICT (user_id) DO NOTHING
`
	if _, err := t.q.ExecContext(ctx, ins, userID); err != nil {
		return wallet.Wallet{}, err
	}
	return getWallet(ctx, t.q, userID, true)
}

func (t *pgTx) SaveWallet(ctx context.Context, w wallet.Wallet) error {
	const q = `
UPDATE wallets
SET balance_minor = $2,
    total_saved_minor = $3,
    total_invested_minor = $4,
    total_withdrawn_minor = $5,
    updated_at = $6
WHERE user_id = $1
`
	res, err := t.q.ExecContext(ctx, q,
		w.UserID, w.BalanceMinor, w.TotalSavedMinor,
		w.TotalInvestedMinor, w.TotalWithdrawnMinor, w.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn ledger.Transaction) error {
	const q = `
INSERT INTO ledger_transactions (
  id, user_id, type, amount_minor, status,
  gateway_order_id, gateway_payment_id, gateway_signature,
  auto_save_amount_minor, auto_save_applied, linked_transaction_id,
  failure_reason, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	_, err := t.q.ExecContext(ctx, q,
		txn.ID, txn.UserID, txn.Type, txn.AmountMinor, txn.Status,
		nullString(txn.GatewayOrderID), nullString(txn.GatewayPaymentID), nullString(txn.GatewaySignature),
		txn.AutoSaveAmountMinor, txn.AutoSaveApplied, nullString(txn.LinkedTransactionID),
		nullString(txn.FailureReason), nullString(txn.Metadata), txn.CreatedAt, txn.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *pgTx) UpdateTransaction(ctx context.Context, txn ledger.Transaction) error {
	const q = `
UPDATE ledger_transactions
SET status = $2,
    gateway_payment_id = $3,
    gateway_signature = $4,
    auto_save_applied = $5,
    failure_reason = $6,
    metadata = $7,
    updated_at = $8
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q,
		txn.ID, txn.Status,
		nullString(txn.GatewayPaymentID), nullString(txn.GatewaySignature),
		txn.AutoSaveApplied, nullString(txn.FailureReason), nullString(txn.Metadata),
		txn.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	const q = selectTransaction + ` WHERE id = $1`
	return scanTransaction(t.q.QueryRowContext(ctx, q, id))
}

func (t *pgTx) GetTransactionByOrderID(ctx context.Context, orderID string) (ledger.Transaction, error) {
	const q = selectTransaction + ` WHERE gateway_order_id = $1`
	return scanTransaction(t.q.QueryRowContext(ctx, q, orderID))
}

func (t *pgTx) TransactionByOrderIDForUpdate(ctx context.Context, orderID string) (ledger.Transaction, error) {
	const q = selectTransaction + ` WHERE gateway_order_id = $1 FOR UPDATE`
	return scanTransaction(t.q.QueryRowContext(ctx, q, orderID))
}

func (t *pgTx) ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return listTransactions(ctx, t.q, userID, limit)
}

func (t *pgTx) GetProduct(ctx context.Context, productID string) (invest.Product, error) {
	const q = selectProduct + ` WHERE id = $1`
	return scanProduct(t.q.QueryRowContext(ctx, q, productID))
}

func (t *pgTx) ListProducts(ctx context.Context, activeOnly bool) ([]invest.Product, error) {
	q := selectProduct
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := t.q.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invest.Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (t *pgTx) LatestNav(ctx context.Context, productID string) (invest.NavQuote, error) {
	return latestNav(ctx, t.q, productID)
}

func (t *pgTx) InsertInvestment(ctx context.Context, inv invest.Investment) error {
	const q = `
INSERT INTO investments (
  id, user_id, product_id, amount_invested_minor, units, purchase_nav,
  status, purchase_date, redemption_date, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := t.q.ExecContext(ctx, q,
		inv.ID, inv.UserID, inv.ProductID, inv.AmountInvestedMinor,
		inv.Units, inv.PurchaseNav, inv.Status, inv.PurchaseDate,
		nullTime(inv.RedemptionDate), inv.CreatedAt, inv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *pgTx) GetInvestment(ctx context.Context, id string) (invest.Investment, error) {
	const q = selectInvestment + ` WHERE id = $1`
	return scanInvestment(t.q.QueryRowContext(ctx, q, id))
}

func (t *pgTx) InvestmentForUpdate(ctx context.Context, id string) (invest.Investment, error) {
	const q = selectInvestment + ` WHERE id = $1 FOR UPDATE`
	return scanInvestment(t.q.QueryRowContext(ctx, q, id))
}

func (t *pgTx) ListInvestments(ctx context.Context, userID string) ([]invest.Investment, error) {
	const q = selectInvestment + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := t.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invest.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateInvestment(ctx context.Context, inv invest.Investment) error {
	const q = `
UPDATE investments
SET units = $2,
    status = $3,
    redemption_date = $4,
    updated_at = $5
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q,
		inv.ID, inv.Units, inv.Status, nullTime(inv.RedemptionDate), inv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GetAutoSavePolicy(ctx context.Context, userID string) (autosave.Policy, error) {
	return getAutoSavePolicy(ctx, t.q, userID)
}

func (t *pgTx) ClaimEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrConflict
	}
	const q = `INSERT INTO processed_events (event_id, created_at) VALUES ($1, now())`
	_, err := t.q.ExecContext(ctx, q, eventID)
	if isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return err
}

// --- shared SQL ---

const selectTransaction = `
SELECT id, user_id, type, amount_minor, status,
       gateway_order_id, gateway_payment_id, gateway_signature,
       auto_save_amount_minor, auto_save_applied, linked_transaction_id,
       failure_reason, metadata, created_at, updated_at
FROM ledger_transactions`

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var orderID, paymentID, signature, linkedID, reason, metadata sql.NullString
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.AmountMinor, &t.Status,
		&orderID, &paymentID, &signature,
		&t.AutoSaveAmountMinor, &t.AutoSaveApplied, &linkedID,
		&reason, &metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Transaction{}, ErrNotFound
		}
		return ledger.Transaction{}, err
	}
	t.GatewayOrderID = orderID.String
	t.GatewayPaymentID = paymentID.String
	t.GatewaySignature = signature.String
	t.LinkedTransactionID = linkedID.String
	t.FailureReason = reason.String
	t.Metadata = metadata.String
	return t, nil
}

func listTransactions(ctx context.Context, q querier, userID string, limit int) ([]ledger.Transaction, error) {
	query := selectTransaction + ` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func getWallet(ctx context.Context, q querier, userID string, forUpdate bool) (wallet.Wallet, error) {
	query := `
SELECT user_id, balance_minor, total_saved_minor, total_invested_minor, total_withdrawn_minor, created_at, updated_at
FROM wallets
WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var w wallet.Wallet
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&w.UserID, &w.BalanceMinor, &w.TotalSavedMinor,
		&w.TotalInvestedMinor, &w.TotalWithdrawnMinor,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.Wallet{}, ErrNotFound
		}
		return wallet.Wallet{}, err
	}
	return w, nil
}

const selectProduct = `
SELECT id, name, category, risk_level, min_investment_minor, exit_load_percent, is_active, created_at, updated_at
FROM investment_products`

func scanProduct(row rowScanner) (invest.Product, error) {
	var p invest.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.RiskLevel,
		&p.MinInvestmentMinor, &p.ExitLoadPercent, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invest.Product{}, ErrNotFound
		}
		return invest.Product{}, err
	}
	return p, nil
}

func latestNav(ctx context.Context, q querier, productID string) (invest.NavQuote, error) {
	const query = `
SELECT product_id, date, nav, created_at
FROM nav_quotes
WHERE product_id = $1
ORDER BY date DESC
LIMIT 1`
	var quote invest.NavQuote
	err := q.QueryRowContext(ctx, query, productID).Scan(
		&quote.ProductID, &quote.Date, &quote.Nav, &quote.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invest.NavQuote{}, ErrNotFound
		}
		return invest.NavQuote{}, err
	}
	return quote, nil
}

const selectInvestment = `
SELECT id, user_id, product_id, amount_invested_minor, units, purchase_nav,
       status, purchase_date, redemption_date, created_at, updated_at
FROM investments`

func scanInvestment(row rowScanner) (invest.Investment, error) {
	var inv invest.Investment
	var redeemedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.ProductID, &inv.AmountInvestedMinor,
		&inv.Units, &inv.PurchaseNav, &inv.Status, &inv.PurchaseDate,
		&redeemedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invest.Investment{}, ErrNotFound
		}
		return invest.Investment{}, err
	}
	if redeemedAt.Valid {
		t := redeemedAt.Time
		inv.RedemptionDate = &t
	}
	return inv, nil
}

func getAutoSavePolicy(ctx context.Context, q querier, userID string) (autosave.Policy, error) {
	const query = `
SELECT user_id, enabled, percentage, min_transaction_minor, max_per_transaction_minor, updated_at
FROM autosave_policies
WHERE user_id = $1`
	var p autosave.Policy
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Enabled, &p.Percentage,
		&p.MinTransactionMinor, &p.MaxPerTransactionMinor, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return autosave.Policy{}, ErrNotFound
		}
		return autosave.Policy{}, err
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
