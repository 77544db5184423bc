package invest

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnitsFor(t *testing.T) {
	// 5,000 at NAV 1,000 buys 5 units.
	if got := UnitsFor(5000, decimal.NewFromInt(1000)); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 units, got %s", got)
	}
	// Division keeps 4 fractional digits: 1000/3 = 333.3333...
	if got := UnitsFor(1000, decimal.NewFromInt(3)); got.String() != "333.3333" {
		t.Fatalf("expected 333.3333, got %s", got)
	}
	// Tiny amounts against a huge NAV round to zero units.
	if got := UnitsFor(1, decimal.NewFromInt(70000)); !got.IsZero() {
		t.Fatalf("expected 0 units, got %s", got)
	}
}

func TestValueOf_RoundTrip(t *testing.T) {
	// Buying then valuing at the same NAV returns the amount exactly for
	// everyday NAV magnitudes.
	for _, amount := range []int64{1, 100, 999, 5000, 123457} {
		for _, nav := range []int64{3, 7, 100, 1000, 1100} {
			units := UnitsFor(amount, decimal.NewFromInt(nav))
			if units.IsZero() {
				continue
			}
			if got := ValueOf(units, decimal.NewFromInt(nav)); got != amount {
				t.Fatalf("round trip %d @ %d: got %d", amount, nav, got)
			}
		}
	}
}

func TestExitLoad(t *testing.T) {
	// 1% of 5,500 is 55.
	if got := ExitLoad(5500, 1); got != 55 {
		t.Fatalf("expected 55, got %d", got)
	}
	if got := ExitLoad(5500, 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	// 0.25% of 10,000 is 25.
	if got := ExitLoad(10000, 0.25); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
}

func TestRedeemable(t *testing.T) {
	if !(Investment{Status: StatusActive}).Redeemable() {
		t.Fatalf("ACTIVE is redeemable")
	}
	if !(Investment{Status: StatusPartialRedeemed}).Redeemable() {
		t.Fatalf("PARTIAL_REDEEMED is redeemable")
	}
	if (Investment{Status: StatusRedeemed}).Redeemable() {
		t.Fatalf("REDEEMED is not redeemable")
	}
}
