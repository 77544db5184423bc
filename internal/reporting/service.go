package reporting

import (
	"context"
	"errors"

	"savings-platform/internal/invest"
	"savings-platform/internal/store"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Service answers read-only portfolio and history queries. It never
// mutates; all writes go through the settlement and investment engines.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service { return &Service{store: st} }

func (s *Service) WalletSummary(ctx context.Context, userID string) (WalletSummary, error) {
	if userID == "" {
		return WalletSummary{}, ErrInvalidRequest
	}
	w, err := s.store.GetWallet(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		// A user who never transacted has an implicit empty wallet.
		return WalletSummary{UserID: userID}, nil
	}
	if err != nil {
		return WalletSummary{}, err
	}
	return WalletSummary{
		UserID:              w.UserID,
		BalanceMinor:        w.BalanceMinor,
		TotalSavedMinor:     w.TotalSavedMinor,
		TotalInvestedMinor:  w.TotalInvestedMinor,
		TotalWithdrawnMinor: w.TotalWithdrawnMinor,
	}, nil
}

// Portfolio values every holding that still has units at the latest NAV.
// Fully redeemed investments are excluded; history shows them instead.
func (s *Service) Portfolio(ctx context.Context, userID string) (PortfolioSummary, error) {
	if userID == "" {
		return PortfolioSummary{}, ErrInvalidRequest
	}

	invs, err := s.store.ListInvestments(ctx, userID)
	if err != nil {
		return PortfolioSummary{}, err
	}

	out := PortfolioSummary{UserID: userID, Holdings: []Holding{}}
	for _, inv := range invs {
		if inv.Status == invest.StatusRedeemed {
			continue
		}

		nav := inv.PurchaseNav
		if q, err := s.store.LatestNav(ctx, inv.ProductID); err == nil {
			nav = q.Nav
		} else if !errors.Is(err, store.ErrNotFound) {
			return PortfolioSummary{}, err
		}

		var name string
		if p, err := s.store.GetProduct(ctx, inv.ProductID); err == nil {
			name = p.Name
		} else if !errors.Is(err, store.ErrNotFound) {
			return PortfolioSummary{}, err
		}

		h := Holding{
			Investment:        inv,
			ProductName:       name,
			CurrentNav:        nav.String(),
			CurrentValueMinor: invest.ValueOf(inv.Units, nav),
			CostBasisMinor:    invest.ValueOf(inv.Units, inv.PurchaseNav),
		}
		h.ReturnsMinor = h.CurrentValueMinor - h.CostBasisMinor
		if h.CostBasisMinor > 0 {
			h.ReturnsPercent = float64(h.ReturnsMinor) / float64(h.CostBasisMinor) * 100
		}

		out.Holdings = append(out.Holdings, h)
		out.CostBasisMinor += h.CostBasisMinor
		out.CurrentValueMinor += h.CurrentValueMinor
	}
	out.ReturnsMinor = out.CurrentValueMinor - out.CostBasisMinor
	return out, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) (LedgerHistory, error) {
	if userID == "" {
		return LedgerHistory{}, ErrInvalidRequest
	}
	rows, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return LedgerHistory{}, err
	}
	return LedgerHistory{UserID: userID, Transactions: rows}, nil
}
