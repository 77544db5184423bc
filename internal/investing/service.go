package investing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"savings-platform/internal/invest"
	"savings-platform/internal/kyc"
	"savings-platform/internal/ledger"
	"savings-platform/internal/store"
	"savings-platform/internal/wallet"
	"savings-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service buys and redeems product units against the wallet.
//
// Money invariants:
//   - The wallet debit/credit, the investment row and the ledger row are one
//     atomic unit; a storage failure aborts all three.
//   - Units never go negative; REDEEMED iff units == 0.
//   - NAV is read inside the unit, so the price used for math is the price
//     that was current when the unit was serialized.
type Service struct {
	store store.Store
	kyc   kyc.Provider
	clock func() time.Time
}

func NewService(st store.Store, kycProvider kyc.Provider) *Service {
	return &Service{store: st, kyc: kycProvider, clock: time.Now}
}

var (
	ErrInvalidArgument = errors.New("investing: invalid argument")
	ErrProductInactive = errors.New("investing: product is not active")
	ErrBelowMinimum    = errors.New("investing: amount below product minimum")
	ErrNavUnavailable  = errors.New("investing: no NAV quote available")
	ErrForbidden       = errors.New("investing: investment belongs to another user")
	ErrInvalidState    = errors.New("investing: investment is not redeemable")
	ErrExceedsHoldings = errors.New("investing: requested amount exceeds current value")
)

type PurchaseResult struct {
	Investment   invest.Investment `json:"investment"`
	BalanceMinor int64             `json:"balance_minor"`
}

// Purchase debits the wallet and creates an ACTIVE holding at the latest NAV.
func (s *Service) Purchase(ctx context.Context, userID, productID string, amountMinor int64) (PurchaseResult, error) {
	if userID == "" || productID == "" || amountMinor <= 0 {
		return PurchaseResult{}, ErrInvalidArgument
	}

	// Investing requires full KYC.
	if err := kyc.Require(ctx, s.kyc, userID, kyc.LevelFull); err != nil {
		return PurchaseResult{}, err
	}

	now := s.clock().UTC()
	var out PurchaseResult

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return ErrProductInactive
		}
		if amountMinor < product.MinInvestmentMinor {
			return ErrBelowMinimum
		}

		quote, err := tx.LatestNav(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNavUnavailable
			}
			return err
		}

		units := invest.UnitsFor(amountMinor, quote.Nav)
		if units.IsZero() || units.IsNegative() {
			return ErrInvalidArgument
		}

		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := w.ApplyDebit(amountMinor, wallet.CounterInvested, now); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		inv := invest.Investment{
			ID:                  uuid.NewString(),
			UserID:              userID,
			ProductID:           productID,
			AmountInvestedMinor: amountMinor,
			Units:               units,
			PurchaseNav:         quote.Nav,
			Status:              invest.StatusActive,
			PurchaseDate:        now,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.InsertInvestment(ctx, inv); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]string{
			"product_id": productID,
			"units":      units.String(),
			"nav":        quote.Nav.String(),
		})
		txn := ledger.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        ledger.TypeInvestment,
			AmountMinor: amountMinor,
			Status:      ledger.StatusSuccess,
			Metadata:    string(meta),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		out = PurchaseResult{Investment: inv, BalanceMinor: w.BalanceMinor}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	logger.From(ctx).Info("investment purchased",
		"user_id", userID,
		"product_id", productID,
		"amount_minor", amountMinor,
		"units", out.Investment.Units.String(),
	)
	return out, nil
}

type RedeemResult struct {
	Investment invest.Investment `json:"investment"`

	UnitsRedeemed string `json:"units_redeemed"`
	GrossMinor    int64  `json:"gross_minor"`
	ExitLoadMinor int64  `json:"exit_load_minor"`
	NetMinor      int64  `json:"net_minor"`

	BalanceMinor int64 `json:"balance_minor"`
}

// Redeem converts units back into wallet money at the latest NAV, net of
// the product's exit load. A nil requestedAmountMinor (or one equal to the
// holding's current value) redeems fully; anything larger is rejected.
func (s *Service) Redeem(ctx context.Context, userID, investmentID string, requestedAmountMinor *int64) (RedeemResult, error) {
	if userID == "" || investmentID == "" {
		return RedeemResult{}, ErrInvalidArgument
	}
	if requestedAmountMinor != nil && *requestedAmountMinor <= 0 {
		return RedeemResult{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var out RedeemResult

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, err := tx.InvestmentForUpdate(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrForbidden
		}
		if !inv.Redeemable() {
			return ErrInvalidState
		}

		product, err := tx.GetProduct(ctx, inv.ProductID)
		if err != nil {
			return err
		}
		quote, err := tx.LatestNav(ctx, inv.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNavUnavailable
			}
			return err
		}

		currentValue := invest.ValueOf(inv.Units, quote.Nav)

		unitsToRedeem := inv.Units
		grossMinor := currentValue
		full := true
		if requestedAmountMinor != nil {
			req := *requestedAmountMinor
			if req > currentValue {
				return ErrExceedsHoldings
			}
			if req < currentValue {
				full = false
				unitsToRedeem = invest.UnitsFor(req, quote.Nav)
				grossMinor = req
				if unitsToRedeem.IsZero() {
					return ErrInvalidArgument
				}
			}
		}

		exitLoadMinor := invest.ExitLoad(grossMinor, product.ExitLoadPercent)
		netMinor := grossMinor - exitLoadMinor
		if netMinor <= 0 {
			return ErrInvalidArgument
		}

		if full {
			inv.Units = decimal.Zero
			inv.Status = invest.StatusRedeemed
			inv.RedemptionDate = &now
		} else {
			inv.Units = inv.Units.Sub(unitsToRedeem)
			if inv.Units.IsNegative() {
				return ErrExceedsHoldings
			}
			if inv.Units.IsZero() {
				// Rounding consumed the whole holding.
				inv.Status = invest.StatusRedeemed
				inv.RedemptionDate = &now
			} else {
				inv.Status = invest.StatusPartialRedeemed
			}
		}
		inv.UpdatedAt = now
		if err := tx.UpdateInvestment(ctx, inv); err != nil {
			return err
		}

		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := w.ApplyCredit(netMinor, wallet.CounterWithdrawn, now); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]string{
			"investment_id":   inv.ID,
			"units_redeemed":  unitsToRedeem.String(),
			"nav":             quote.Nav.String(),
			"gross_minor":     fmt.Sprintf("%d", grossMinor),
			"exit_load_minor": fmt.Sprintf("%d", exitLoadMinor),
		})
		txn := ledger.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        ledger.TypeRedemption,
			AmountMinor: netMinor,
			Status:      ledger.StatusSuccess,
			Metadata:    string(meta),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		out = RedeemResult{
			Investment:    inv,
			UnitsRedeemed: unitsToRedeem.String(),
			GrossMinor:    grossMinor,
			ExitLoadMinor: exitLoadMinor,
			NetMinor:      netMinor,
			BalanceMinor:  w.BalanceMinor,
		}
		return nil
	})
	if err != nil {
		return RedeemResult{}, err
	}

	logger.From(ctx).Info("investment redeemed",
		"user_id", userID,
		"investment_id", investmentID,
		"net_minor", out.NetMinor,
		"exit_load_minor", out.ExitLoadMinor,
	)
	return out, nil
}
