package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"savings-platform/internal/invest"
	"savings-platform/internal/ledger"
	"savings-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

func TestMemoryAtomic_RollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, "u1")
		if err != nil {
			return err
		}
		if err := w.ApplyCredit(500, wallet.CounterNone, time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, ledger.Transaction{ID: "t1", UserID: "u1", Type: ledger.TypeDeposit, AmountMinor: 500, Status: ledger.StatusSuccess}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := m.GetWallet(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wallet write must be rolled back, got %v", err)
	}
	if _, err := m.GetTransaction(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ledger write must be rolled back, got %v", err)
	}
}

func TestMemoryClaimEvent_Deduplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClaimEvent(ctx, "evt_1")
	}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClaimEvent(ctx, "evt_1")
	})
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestMemoryClaimEvent_FailedUnitReleasesNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	_ = m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ClaimEvent(ctx, "evt_1"); err != nil {
			return err
		}
		return boom
	})

	// The aborted unit must not leave the event claimed.
	if err := m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClaimEvent(ctx, "evt_1")
	}); err != nil {
		t.Fatalf("claim after rollback: %v", err)
	}
}

func TestMemoryUpsertNav_OrderingRules(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateProduct(ctx, invest.Product{ID: "p1", Name: "Liquid Fund", IsActive: true}); err != nil {
		t.Fatalf("product: %v", err)
	}

	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := m.UpsertNav(ctx, invest.NavQuote{ProductID: "p1", Date: day1, Nav: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	if err := m.UpsertNav(ctx, invest.NavQuote{ProductID: "p1", Date: day1, Nav: decimal.NewFromInt(1001)}); !errors.Is(err, ErrConflict) {
		t.Fatalf("same-day duplicate must conflict, got %v", err)
	}
	if err := m.UpsertNav(ctx, invest.NavQuote{ProductID: "p1", Date: day2, Nav: decimal.NewFromInt(1100)}); err != nil {
		t.Fatalf("later quote: %v", err)
	}
	if err := m.UpsertNav(ctx, invest.NavQuote{ProductID: "p1", Date: day1, Nav: decimal.NewFromInt(900)}); !errors.Is(err, ErrConflict) {
		t.Fatalf("backdated quote must conflict, got %v", err)
	}

	latest, err := m.LatestNav(ctx, "p1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Nav.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("expected latest nav 1100, got %s", latest.Nav)
	}
}

func TestMemoryInsertTransaction_DuplicateOrderIDConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTransaction(ctx, ledger.Transaction{ID: "t1", UserID: "u1", Type: ledger.TypePayment, AmountMinor: 100, Status: ledger.StatusPending, GatewayOrderID: "order_1"})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = m.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertTransaction(ctx, ledger.Transaction{ID: "t2", UserID: "u1", Type: ledger.TypePayment, AmountMinor: 100, Status: ledger.StatusPending, GatewayOrderID: "order_1"})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
