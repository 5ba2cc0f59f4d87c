package strategy

import (
	"errors"
	"testing"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
)

func TestOptimalDPRequiresBernoulliArms(t *testing.T) {
	s := NewOptimalDP(Options{Horizon: 5})
	configs := []arm.Config{
		{ID: "a", Family: dist.Bernoulli, Params: []float64{0.5}},
		{ID: "b", Family: dist.Normal, Params: []float64{0, 1}},
	}
	if err := s.Init(configs); err == nil {
		t.Fatal("expected error for non-bernoulli arm")
	}
}

// Enumerates every reachable state for k=2, Beta(1,1), H=3 and checks the
// planned action always prefers the arm with the higher posterior mean,
// or either arm when the two posteriors are identical.
func TestOptimalDPPrefersHigherPosteriorMean(t *testing.T) {
	for tRound := 0; tRound < 3; tRound++ {
		forEachCountSplit(tRound, func(s0, f0, s1, f1 int) {
			s := NewOptimalDP(Options{Horizon: 3})
			if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
				t.Fatalf("init: %v", err)
			}
			s.rounds = tRound
			s.counts[0] = [2]uint16{uint16(s0), uint16(f0)}
			s.counts[1] = [2]uint16{uint16(s1), uint16(f1)}

			got, err := s.SelectArm()
			if err != nil {
				t.Fatalf("select at t=%d state=(%d,%d,%d,%d): %v", tRound, s0, f0, s1, f1, err)
			}

			p0 := (1.0 + float64(s0)) / (2.0 + float64(s0) + float64(f0))
			p1 := (1.0 + float64(s1)) / (2.0 + float64(s1) + float64(f1))
			switch {
			case p0 > p1 && got != "a":
				t.Fatalf("t=%d state=(%d,%d,%d,%d): expected a (p0=%f > p1=%f), got %s", tRound, s0, f0, s1, f1, p0, p1, got)
			case p1 > p0 && got != "b":
				t.Fatalf("t=%d state=(%d,%d,%d,%d): expected b (p1=%f > p0=%f), got %s", tRound, s0, f0, s1, f1, p1, p0, got)
			}
		})
	}
}

// forEachCountSplit enumerates all (s0,f0,s1,f1) with total pulls == t.
func forEachCountSplit(t int, fn func(s0, f0, s1, f1 int)) {
	for s0 := 0; s0 <= t; s0++ {
		for f0 := 0; s0+f0 <= t; f0++ {
			for s1 := 0; s0+f0+s1 <= t; s1++ {
				f1 := t - s0 - f0 - s1
				fn(s0, f0, s1, f1)
			}
		}
	}
}

func TestOptimalDPFailsLoudlyBeyondHorizon(t *testing.T) {
	s := NewOptimalDP(Options{Horizon: 2})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 0; i < 2; i++ {
		chosen, err := s.SelectArm()
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if err := s.Update(chosen, 1); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	_, err := s.SelectArm()
	if !errors.Is(err, ErrStateNotPlanned) {
		t.Fatalf("expected ErrStateNotPlanned, got %v", err)
	}
}

func TestOptimalDPUpdateSplitsSuccessesAndFailures(t *testing.T) {
	s := NewOptimalDP(Options{Horizon: 10})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, r := range []float64{1, 1, 0, 1, 0} {
		if err := s.Update("a", r); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	st := s.State()
	if st.Arms[0].Successes != 3 || st.Arms[0].Failures != 2 {
		t.Fatalf("expected 3 successes / 2 failures, got %+v", st.Arms[0])
	}
	if st.Rounds != 5 {
		t.Fatalf("expected 5 rounds, got %d", st.Rounds)
	}
}

// The default horizon is far beyond what exact backward induction can
// enumerate, so selection must plan a bounded lookahead per pull instead
// of the full state space.
func TestOptimalDPDefaultHorizonSelectsWithBoundedPlanning(t *testing.T) {
	s := NewOptimalDP(Options{})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	if s.lookahead >= s.horizon {
		t.Fatalf("lookahead %d should be capped below horizon %d", s.lookahead, s.horizon)
	}

	for i := 0; i < 3; i++ {
		chosen, err := s.SelectArm()
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if err := s.Update(chosen, float64(i%2)); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if len(s.memo) > 8*planStateBudget {
		t.Fatalf("memo grew past its bound: %d states", len(s.memo))
	}
}

func TestPlanLookaheadStaysWithinBudget(t *testing.T) {
	for arms := arm.MinArms; arms <= arm.MaxArms; arms++ {
		depth := planLookahead(arms, planStateBudget)
		if depth < 1 {
			t.Fatalf("arms=%d: lookahead must allow at least one pull, got %d", arms, depth)
		}

		// Recompute C(depth+2k, 2k) and check it respects the budget while
		// one more step would not.
		states := 1.0
		dim := float64(2 * arms)
		for d := 0; d < depth; d++ {
			states *= (float64(d) + 1 + dim) / (float64(d) + 1)
		}
		if states > float64(planStateBudget) {
			t.Fatalf("arms=%d depth=%d: %f states exceeds budget", arms, depth, states)
		}
		next := states * (float64(depth) + 1 + dim) / (float64(depth) + 1)
		if next <= float64(planStateBudget) {
			t.Fatalf("arms=%d depth=%d: lookahead is not maximal (%f states)", arms, depth, next)
		}
	}
}

func TestOptimalDPMemoizesLazily(t *testing.T) {
	s := NewOptimalDP(Options{Horizon: 6})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.SelectArm(); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(s.memo) == 0 {
		t.Fatal("expected memo table to populate on demand")
	}
	s.Reset()
	if len(s.memo) != 0 {
		t.Fatal("reset must clear the memo table")
	}
}
