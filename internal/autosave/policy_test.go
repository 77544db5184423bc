package autosave

import "testing"

func TestEvaluate_DisabledReturnsZero(t *testing.T) {
	p := Policy{Enabled: false, Percentage: 20}
	if got := Evaluate(1000, p); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEvaluate_PercentageSkim(t *testing.T) {
	p := Policy{Enabled: true, Percentage: 20}
	// 20% of a 1,000 payment saves 200.
	if got := Evaluate(1000, p); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestEvaluate_BelowMinimum(t *testing.T) {
	p := Policy{Enabled: true, Percentage: 20, MinTransactionMinor: 5000}
	if got := Evaluate(4999, p); got != 0 {
		t.Fatalf("expected 0 below minimum, got %d", got)
	}
	if got := Evaluate(5000, p); got != 1000 {
		t.Fatalf("expected 1000 at minimum, got %d", got)
	}
}

func TestEvaluate_CapApplies(t *testing.T) {
	p := Policy{Enabled: true, Percentage: 50, MaxPerTransactionMinor: 300}
	if got := Evaluate(1000, p); got != 300 {
		t.Fatalf("expected cap 300, got %d", got)
	}
}

func TestEvaluate_RoundsHalfAwayFromZero(t *testing.T) {
	// 12.5% of 101 = 12.625 -> 13
	p := Policy{Enabled: true, Percentage: 12.5}
	if got := Evaluate(101, p); got != 13 {
		t.Fatalf("expected 13, got %d", got)
	}
	// 0.5% of 101 = 0.505 -> 1
	p = Policy{Enabled: true, Percentage: 0.5}
	if got := Evaluate(101, p); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	p := Policy{Enabled: true, Percentage: 7.3, MinTransactionMinor: 10, MaxPerTransactionMinor: 10000}
	first := Evaluate(123457, p)
	for i := 0; i < 100; i++ {
		if got := Evaluate(123457, p); got != first {
			t.Fatalf("evaluation must be deterministic: %d != %d", got, first)
		}
	}
}

func TestPolicyValid(t *testing.T) {
	if !(Policy{Percentage: 20}).Valid() {
		t.Fatalf("expected valid")
	}
	if (Policy{Percentage: 101}).Valid() {
		t.Fatalf("percentage above 100 is invalid")
	}
	if (Policy{Percentage: -1}).Valid() {
		t.Fatalf("negative percentage is invalid")
	}
	if (Policy{MinTransactionMinor: -1}).Valid() {
		t.Fatalf("negative minimum is invalid")
	}
}
