package investing

import (
	"context"
	"errors"
	"testing"
	"time"

	"savings-platform/internal/invest"
	"savings-platform/internal/kyc"
	"savings-platform/internal/ledger"
	"savings-platform/internal/store"
	"savings-platform/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := NewService(st, kyc.NewStaticProvider(map[string]kyc.Level{"u1": kyc.LevelFull}))
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc, st
}

func seedProduct(t *testing.T, st *store.Memory, exitLoadPercent float64, navMinor int64) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateProduct(ctx, invest.Product{
		ID: "p1", Name: "Liquid Fund", Category: "debt", RiskLevel: invest.RiskLevelLow,
		MinInvestmentMinor: 100, ExitLoadPercent: exitLoadPercent, IsActive: true,
	}); err != nil {
		t.Fatalf("product: %v", err)
	}
	if navMinor > 0 {
		seedNav(t, st, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), navMinor)
	}
}

func seedNav(t *testing.T, st *store.Memory, day time.Time, navMinor int64) {
	t.Helper()
	err := st.UpsertNav(context.Background(), invest.NavQuote{
		ProductID: "p1", Date: day, Nav: decimal.NewFromInt(navMinor),
	})
	if err != nil {
		t.Fatalf("nav: %v", err)
	}
}

// seedBalance funds the wallet through a SUCCESS DEPOSIT row so the
// balance invariant stays checkable.
func seedBalance(t *testing.T, st *store.Memory, userID string, amount int64) {
	t.Helper()
	now := time.Unix(1699990000, 0).UTC()
	err := st.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := w.ApplyCredit(amount, wallet.CounterNone, now); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, ledger.Transaction{
			ID: uuid.NewString(), UserID: userID, Type: ledger.TypeDeposit,
			AmountMinor: amount, Status: ledger.StatusSuccess,
			CreatedAt: now, UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func assertBalanceInvariant(t *testing.T, st store.Store, userID string) {
	t.Helper()
	ctx := context.Background()

	w, err := st.GetWallet(ctx, userID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	rows, err := st.ListTransactions(ctx, userID, 0)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	var sum int64
	for _, r := range rows {
		if r.Status == ledger.StatusSuccess {
			sum += r.AmountMinor * r.Direction()
		}
	}
	if w.BalanceMinor != sum {
		t.Fatalf("balance invariant violated: wallet=%d, ledger sum=%d", w.BalanceMinor, sum)
	}
}

func TestPurchase_DebitsWalletAndCreatesHolding(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 1, 1000)
	seedBalance(t, st, "u1", 10000)

	res, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.Investment.Units.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 units, got %s", res.Investment.Units)
	}
	if res.BalanceMinor != 5000 {
		t.Fatalf("expected balance 5000, got %d", res.BalanceMinor)
	}

	w, _ := st.GetWallet(ctx, "u1")
	if w.TotalInvestedMinor != 5000 {
		t.Fatalf("expected total_invested 5000, got %d", w.TotalInvestedMinor)
	}

	rows, _ := st.ListTransactions(ctx, "u1", 0)
	var investments int
	for _, r := range rows {
		if r.Type == ledger.TypeInvestment && r.Status == ledger.StatusSuccess {
			investments++
		}
	}
	if investments != 1 {
		t.Fatalf("expected one INVESTMENT row, got %d", investments)
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestPurchase_RequiresFullKyc(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, kyc.NewStaticProvider(map[string]kyc.Level{"u1": kyc.LevelBasic}))
	seedProduct(t, st, 0, 1000)

	_, err := svc.Purchase(context.Background(), "u1", "p1", 5000)
	var req *kyc.RequiredError
	if !errors.As(err, &req) {
		t.Fatalf("expected KYC gate, got %v", err)
	}
	if req.Required != kyc.LevelFull {
		t.Fatalf("expected LevelFull gate, got %+v", req)
	}
	if len(req.NextSteps) == 0 {
		t.Fatalf("expected ordered missing steps")
	}
}

func TestPurchase_Validation(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	if _, err := svc.Purchase(ctx, "u1", "missing", 5000); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown product: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Purchase(ctx, "u1", "p1", 50); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	if err := st.SetProductActive(ctx, "p1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Purchase(ctx, "u1", "p1", 5000); !errors.Is(err, ErrProductInactive) {
		t.Fatalf("expected ErrProductInactive, got %v", err)
	}
}

func TestPurchase_NavUnavailable(t *testing.T) {
	svc, st := newTestEngine(t)
	seedProduct(t, st, 0, 0) // product without any quote
	seedBalance(t, st, "u1", 10000)

	if _, err := svc.Purchase(context.Background(), "u1", "p1", 5000); !errors.Is(err, ErrNavUnavailable) {
		t.Fatalf("expected ErrNavUnavailable, got %v", err)
	}
}

func TestPurchase_InsufficientBalanceLeavesNoState(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 4999)

	if _, err := svc.Purchase(ctx, "u1", "p1", 5000); !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if invs, _ := st.ListInvestments(ctx, "u1"); len(invs) != 0 {
		t.Fatalf("rejected purchase must not create a holding")
	}
	w, _ := st.GetWallet(ctx, "u1")
	if w.BalanceMinor != 4999 || w.TotalInvestedMinor != 0 {
		t.Fatalf("rejected purchase must not move money: %+v", w)
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestRedeem_FullRoundTripConservesValue(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	res, err := svc.Redeem(ctx, "u1", p.Investment.ID, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.NetMinor != 5000 || res.ExitLoadMinor != 0 {
		t.Fatalf("same-NAV zero-load redemption must return exactly 5000, got %+v", res)
	}
	if res.BalanceMinor != 10000 {
		t.Fatalf("expected balance restored to 10000, got %d", res.BalanceMinor)
	}
	if res.Investment.Status != invest.StatusRedeemed || !res.Investment.Units.IsZero() {
		t.Fatalf("expected REDEEMED with zero units, got %+v", res.Investment)
	}
	if res.Investment.RedemptionDate == nil {
		t.Fatalf("expected redemption date set")
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestRedeem_GainWithExitLoad(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 1, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// NAV rises to 1,100: 5 units are worth 5,500; 1% exit load is 55.
	seedNav(t, st, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 1100)

	res, err := svc.Redeem(ctx, "u1", p.Investment.ID, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.GrossMinor != 5500 || res.ExitLoadMinor != 55 || res.NetMinor != 5445 {
		t.Fatalf("expected 5500/55/5445, got %d/%d/%d", res.GrossMinor, res.ExitLoadMinor, res.NetMinor)
	}

	w, _ := st.GetWallet(ctx, "u1")
	if w.BalanceMinor != 10445 {
		t.Fatalf("expected balance 10445, got %d", w.BalanceMinor)
	}
	if w.TotalWithdrawnMinor != 5445 {
		t.Fatalf("expected total_withdrawn 5445, got %d", w.TotalWithdrawnMinor)
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestRedeem_PartialConservesUnits(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	seedNav(t, st, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 1100)

	req := int64(2200) // 2 units at NAV 1,100
	res, err := svc.Redeem(ctx, "u1", p.Investment.ID, &req)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.UnitsRedeemed != "2" {
		t.Fatalf("expected 2 units redeemed, got %s", res.UnitsRedeemed)
	}
	if res.Investment.Status != invest.StatusPartialRedeemed {
		t.Fatalf("expected PARTIAL_REDEEMED, got %s", res.Investment.Status)
	}
	if !res.Investment.Units.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 units left, got %s", res.Investment.Units)
	}
	// Remaining value at the same NAV is (n-k) * nav.
	if got := invest.ValueOf(res.Investment.Units, decimal.NewFromInt(1100)); got != 3300 {
		t.Fatalf("expected remaining value 3300, got %d", got)
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestRedeem_ExceedsHoldings(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	req := int64(5001)
	if _, err := svc.Redeem(ctx, "u1", p.Investment.ID, &req); !errors.Is(err, ErrExceedsHoldings) {
		t.Fatalf("expected ErrExceedsHoldings, got %v", err)
	}
	assertBalanceInvariant(t, st, "u1")
}

func TestRedeem_RequestedEqualToValueIsFull(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	req := int64(5000)
	res, err := svc.Redeem(ctx, "u1", p.Investment.ID, &req)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.Investment.Status != invest.StatusRedeemed {
		t.Fatalf("requested == current value must redeem fully, got %s", res.Investment.Status)
	}
}

func TestRedeem_OwnershipAndState(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, st, 0, 1000)
	seedBalance(t, st, "u1", 10000)

	p, err := svc.Purchase(ctx, "u1", "p1", 5000)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := svc.Redeem(ctx, "u2", p.Investment.ID, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Redeem(ctx, "u1", "missing", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Redeem(ctx, "u1", p.Investment.ID, nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := svc.Redeem(ctx, "u1", p.Investment.ID, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("redeeming a REDEEMED holding must fail, got %v", err)
	}
}
