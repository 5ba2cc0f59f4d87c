package strategy

import (
	"math"
	"testing"
)

func TestEXP3ProbabilitiesSumToOneAfterEveryUpdate(t *testing.T) {
	for _, k := range []int{2, 3, 5, 8} {
		ids := make([]string, k)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		s := NewEXP3(Options{Seed: 11})
		if err := s.Init(bernoulliConfigs(ids...)); err != nil {
			t.Fatalf("init k=%d: %v", k, err)
		}

		for round := 0; round < 200; round++ {
			chosen, err := s.SelectArm()
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			reward := float64(round%21) - 10 // sweep the [-10,10] range
			if err := s.Update(chosen, reward); err != nil {
				t.Fatalf("update: %v", err)
			}
			sum := 0.0
			for _, p := range s.Probabilities() {
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Fatalf("k=%d round %d: probabilities sum to %f", k, round, sum)
			}
		}
	}
}

func TestEXP3KeepsUniformExplorationFloor(t *testing.T) {
	s := NewEXP3(Options{Seed: 3})
	if err := s.Init(bernoulliConfigs("a", "b", "c", "d")); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Hammer one arm with maximum rewards.
	for i := 0; i < 500; i++ {
		if err := s.Update("a", 10); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	floor := s.State()
	gamma := 0.1
	for _, a := range floor.Arms {
		if a.Probability < gamma/4-1e-12 {
			t.Fatalf("arm %s probability %f below exploration floor", a.ID, a.Probability)
		}
	}
}

func TestEXP3ShiftsWeightTowardRewardedArm(t *testing.T) {
	s := NewEXP3(Options{Seed: 7})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := s.Update("a", 10); err != nil {
			t.Fatalf("update a: %v", err)
		}
		if err := s.Update("b", -10); err != nil {
			t.Fatalf("update b: %v", err)
		}
	}
	st := s.State()
	if st.Arms[0].Probability <= st.Arms[1].Probability {
		t.Fatalf("expected a to dominate: %f vs %f", st.Arms[0].Probability, st.Arms[1].Probability)
	}
}

func TestEXP3SurvivesWeightOverflow(t *testing.T) {
	s := NewEXP3(Options{Seed: 5})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Force the chosen weight toward overflow; renormalization must never
	// divide by zero or emit NaN probabilities.
	s.weights[0] = math.MaxFloat64
	s.weights[1] = math.MaxFloat64
	s.recomputeProbabilities()
	for _, p := range s.Probabilities() {
		if math.IsNaN(p) || p <= 0 {
			t.Fatalf("degenerate probability %f", p)
		}
	}
}

func TestEXP3ResetRestoresUniform(t *testing.T) {
	s := NewEXP3(Options{Seed: 9})
	if err := s.Init(bernoulliConfigs("a", "b")); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := s.Update("a", 10); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	s.Reset()
	for _, p := range s.Probabilities() {
		if math.Abs(p-0.5) > 1e-12 {
			t.Fatalf("expected uniform 0.5 after reset, got %f", p)
		}
	}
}
