package engine

import "testing"

func TestAccountantAccumulatesCumulativeSeries(t *testing.T) {
	a := NewAccountant()
	a.Record("user", 0, 5, 1)
	a.Record("user", 1, 3, 0)
	a.Record("user", 2, -2, 2)

	tracks := a.Series()
	user := tracks["user"]
	wantPayout := []float64{5, 8, 6}
	wantRegret := []float64{1, 1, 3}
	for i := range wantPayout {
		if user.Payout[i] != wantPayout[i] {
			t.Fatalf("payout[%d] = %f, want %f", i, user.Payout[i], wantPayout[i])
		}
		if user.Regret[i] != wantRegret[i] {
			t.Fatalf("regret[%d] = %f, want %f", i, user.Regret[i], wantRegret[i])
		}
	}
}

func TestAccountantClampsNegativeRegret(t *testing.T) {
	a := NewAccountant()
	a.Record("s", 0, 0, -5)
	_, regret, ok := a.Cumulative("s")
	if !ok {
		t.Fatal("missing series")
	}
	if regret != 0 {
		t.Fatalf("negative regret must clamp to 0, got %f", regret)
	}
}

func TestAccountantRecordsJoinRound(t *testing.T) {
	a := NewAccountant()
	a.Record("user", 0, 1, 0)
	a.Record("late", 7, 1, 0)

	tracks := a.Series()
	if tracks["late"].StartRound != 7 {
		t.Fatalf("expected start round 7, got %d", tracks["late"].StartRound)
	}
	if got := a.SeriesIDs(); len(got) != 2 || got[0] != "user" || got[1] != "late" {
		t.Fatalf("unexpected series order: %v", got)
	}
}
