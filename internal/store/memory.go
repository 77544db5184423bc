package store

import (
	"context"
	"sync"
	"time"

	"savings-platform/internal/autosave"
	"savings-platform/internal/invest"
	"savings-platform/internal/ledger"
	"savings-platform/internal/wallet"
)

// Memory is an in-memory Store for tests and local development.
//
// A single mutex serializes atomic units; rollback is snapshot/restore.
// Not intended for production; the Postgres implementation is the real one.
type Memory struct {
	mu sync.Mutex

	wallets      map[string]wallet.Wallet
	transactions map[string]ledger.Transaction
	txnOrder     []string
	byOrderID    map[string]string
	products     map[string]invest.Product
	navs         map[string][]invest.NavQuote
	investments  map[string]invest.Investment
	invOrder     []string
	policies     map[string]autosave.Policy
	events       map[string]struct{}

	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		wallets:      make(map[string]wallet.Wallet),
		transactions: make(map[string]ledger.Transaction),
		byOrderID:    make(map[string]string),
		products:     make(map[string]invest.Product),
		navs:         make(map[string][]invest.NavQuote),
		investments:  make(map[string]invest.Investment),
		policies:     make(map[string]autosave.Policy),
		events:       make(map[string]struct{}),
		clock:        time.Now,
	}
}

type memSnapshot struct {
	wallets      map[string]wallet.Wallet
	transactions map[string]ledger.Transaction
	txnOrder     []string
	byOrderID    map[string]string
	products     map[string]invest.Product
	navs         map[string][]invest.NavQuote
	investments  map[string]invest.Investment
	invOrder     []string
	policies     map[string]autosave.Policy
	events       map[string]struct{}
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		wallets:      make(map[string]wallet.Wallet, len(m.wallets)),
		transactions: make(map[string]ledger.Transaction, len(m.transactions)),
		txnOrder:     append([]string(nil), m.txnOrder...),
		byOrderID:    make(map[string]string, len(m.byOrderID)),
		products:     make(map[string]invest.Product, len(m.products)),
		navs:         make(map[string][]invest.NavQuote, len(m.navs)),
		investments:  make(map[string]invest.Investment, len(m.investments)),
		invOrder:     append([]string(nil), m.invOrder...),
		policies:     make(map[string]autosave.Policy, len(m.policies)),
		events:       make(map[string]struct{}, len(m.events)),
	}
	for k, v := range m.wallets {
		s.wallets[k] = v
	}
	for k, v := range m.transactions {
		s.transactions[k] = v
	}
	for k, v := range m.byOrderID {
		s.byOrderID[k] = v
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.navs {
		s.navs[k] = append([]invest.NavQuote(nil), v...)
	}
	for k, v := range m.investments {
		s.investments[k] = v
	}
	for k, v := range m.policies {
		s.policies[k] = v
	}
	for k := range m.events {
		s.events[k] = struct{}{}
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.wallets = s.wallets
	m.transactions = s.transactions
	m.txnOrder = s.txnOrder
	m.byOrderID = s.byOrderID
	m.products = s.products
	m.navs = s.navs
	m.investments = s.investments
	m.invOrder = s.invOrder
	m.policies = s.policies
	m.events = s.events
}

// Atomic serializes every unit behind the store mutex and rolls back all
// writes if fn fails or panics.
func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	err = fn(ctx, &memTx{m: m})
	return err
}

// --- Reader (public, takes the lock) ---

func (m *Memory) GetWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getWalletLocked(userID)
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTransactionLocked(id)
}

func (m *Memory) GetTransactionByOrderID(ctx context.Context, orderID string) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTransactionByOrderIDLocked(orderID)
}

func (m *Memory) ListTransactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTransactionsLocked(userID, limit), nil
}

func (m *Memory) GetProduct(ctx context.Context, productID string) (invest.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getProductLocked(productID)
}

func (m *Memory) ListProducts(ctx context.Context, activeOnly bool) ([]invest.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invest.Product
	for _, p := range m.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) LatestNav(ctx context.Context, productID string) (invest.NavQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestNavLocked(productID)
}

func (m *Memory) GetInvestment(ctx context.Context, id string) (invest.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getInvestmentLocked(id)
}

func (m *Memory) ListInvestments(ctx context.Context, userID string) ([]invest.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listInvestmentsLocked(userID), nil
}

func (m *Memory) GetAutoSavePolicy(ctx context.Context, userID string) (autosave.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[userID]
	if !ok {
		return autosave.Policy{}, ErrNotFound
	}
	return p, nil
}

// --- Admin writes ---

func (m *Memory) CreateProduct(ctx context.Context, p invest.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return ErrConflict
	}
	m.products[p.ID] = p
	return nil
}

func (m *Memory) SetProductActive(ctx context.Context, productID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = active
	p.UpdatedAt = m.clock().UTC()
	m.products[productID] = p
	return nil
}

func (m *Memory) UpsertNav(ctx context.Context, q invest.NavQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[q.ProductID]; !ok {
		return ErrNotFound
	}
	day := q.Date.UTC().Truncate(24 * time.Hour)
	quotes := m.navs[q.ProductID]
	for _, existing := range quotes {
		if !existing.Date.Before(day) {
			// Same-day duplicate or older than the latest quote.
			return ErrConflict
		}
	}
	q.Date = day
	m.navs[q.ProductID] = append(quotes, q)
	return nil
}

func (m *Memory) SaveAutoSavePolicy(ctx context.Context, p autosave.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.UserID] = p
	return nil
}

// --- locked helpers (lock must be held) ---

func (m *Memory) getWalletLocked(userID string) (wallet.Wallet, error) {
	w, ok := m.wallets[userID]
	if !ok {
		return wallet.Wallet{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) getTransactionLocked(id string) (ledger.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return ledger.Transaction{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) getTransactionByOrderIDLocked(orderID string) (ledger.Transaction, error) {
	id, ok := m.byOrderID[orderID]
	if !ok {
		return ledger.Transaction{}, ErrNotFound
	}
	return m.transactions[id], nil
}

func (m *Memory) listTransactionsLocked(userID string, limit int) []ledger.Transaction {
	var out []ledger.Transaction
	for i := len(m.txnOrder) - 1; i >= 0; i-- {
		t := m.transactions[m.txnOrder[i]]
		if t.UserID != userID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (m *Memory) getProductLocked(productID string) (invest.Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return invest.Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) latestNavLocked(productID string) (invest.NavQuote, error) {
	quotes := m.navs[productID]
	if len(quotes) == 0 {
		return invest.NavQuote{}, ErrNotFound
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Date.After(best.Date) {
			best = q
		}
	}
	return best, nil
}

func (m *Memory) getInvestmentLocked(id string) (invest.Investment, error) {
	inv, ok := m.investments[id]
	if !ok {
		return invest.Investment{}, ErrNotFound
	}
	return inv, nil
}

func (m *Memory) listInvestmentsLocked(userID string) []invest.Investment {
	var out []invest.Investment
	for i := len(m.invOrder) - 1; i >= 0; i-- {
		inv := m.investments[m.invOrder[i]]
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	return out
}

// --- Tx ---

type memTx struct {
	m *Memory
}

func (t *memTx) GetWallet(_ context.Context, userID string) (wallet.Wallet, error) {
	return t.m.getWalletLocked(userID)
}

func (t *memTx) GetTransaction(_ context.Context, id string) (ledger.Transaction, error) {
	return t.m.getTransactionLocked(id)
}

func (t *memTx) GetTransactionByOrderID(_ context.Context, orderID string) (ledger.Transaction, error) {
	return t.m.getTransactionByOrderIDLocked(orderID)
}

func (t *memTx) ListTransactions(_ context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return t.m.listTransactionsLocked(userID, limit), nil
}

func (t *memTx) GetProduct(_ context.Context, productID string) (invest.Product, error) {
	return t.m.getProductLocked(productID)
}

func (t *memTx) ListProducts(_ context.Context, activeOnly bool) ([]invest.Product, error) {
	var out []invest.Product
	for _, p := range t.m.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *memTx) LatestNav(_ context.Context, productID string) (invest.NavQuote, error) {
	return t.m.latestNavLocked(productID)
}

func (t *memTx) GetInvestment(_ context.Context, id string) (invest.Investment, error) {
	return t.m.getInvestmentLocked(id)
}

func (t *memTx) ListInvestments(_ context.Context, userID string) ([]invest.Investment, error) {
	return t.m.listInvestmentsLocked(userID), nil
}

func (t *memTx) GetAutoSavePolicy(_ context.Context, userID string) (autosave.Policy, error) {
	p, ok := t.m.policies[userID]
	if !ok {
		return autosave.Policy{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) WalletForUpdate(_ context.Context, userID string) (wallet.Wallet, error) {
	w, ok := t.m.wallets[userID]
	if !ok {
		now := t.m.clock().UTC()
		w = wallet.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}
		t.m.wallets[userID] = w
	}
	return w, nil
}

func (t *memTx) SaveWallet(_ context.Context, w wallet.Wallet) error {
	if _, ok := t.m.wallets[w.UserID]; !ok {
		return ErrNotFound
	}
	t.m.wallets[w.UserID] = w
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn ledger.Transaction) error {
	if _, ok := t.m.transactions[txn.ID]; ok {
		return ErrConflict
	}
	if txn.GatewayOrderID != "" {
		if _, ok := t.m.byOrderID[txn.GatewayOrderID]; ok {
			return ErrConflict
		}
		t.m.byOrderID[txn.GatewayOrderID] = txn.ID
	}
	t.m.transactions[txn.ID] = txn
	t.m.txnOrder = append(t.m.txnOrder, txn.ID)
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, txn ledger.Transaction) error {
	if _, ok := t.m.transactions[txn.ID]; !ok {
		return ErrNotFound
	}
	t.m.transactions[txn.ID] = txn
	return nil
}

func (t *memTx) TransactionByOrderIDForUpdate(_ context.Context, orderID string) (ledger.Transaction, error) {
	return t.m.getTransactionByOrderIDLocked(orderID)
}

func (t *memTx) InsertInvestment(_ context.Context, inv invest.Investment) error {
	if _, ok := t.m.investments[inv.ID]; ok {
		return ErrConflict
	}
	t.m.investments[inv.ID] = inv
	t.m.invOrder = append(t.m.invOrder, inv.ID)
	return nil
}

func (t *memTx) InvestmentForUpdate(_ context.Context, id string) (invest.Investment, error) {
	return t.m.getInvestmentLocked(id)
}

func (t *memTx) UpdateInvestment(_ context.Context, inv invest.Investment) error {
	if _, ok := t.m.investments[inv.ID]; !ok {
		return ErrNotFound
	}
	t.m.investments[inv.ID] = inv
	return nil
}

func (t *memTx) ClaimEvent(_ context.Context, eventID string) error {
	if eventID == "" {
		return ErrConflict
	}
	if _, ok := t.m.events[eventID]; ok {
		return ErrDuplicateEvent
	}
	t.m.events[eventID] = struct{}{}
	return nil
}
