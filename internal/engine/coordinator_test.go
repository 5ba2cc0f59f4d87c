package engine

import (
	"errors"
	"testing"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
	"banditlab/internal/strategy"
)

func testConfigs() []arm.Config {
	return []arm.Config{
		{ID: "a", Family: dist.Bernoulli, Params: []float64{0.2}},
		{ID: "b", Family: dist.Bernoulli, Params: []float64{0.8}},
	}
}

func defaultOpts(string) strategy.Options {
	return strategy.Options{Seed: 17, Horizon: 20}
}

func TestNewCoordinatorExcludesFailingStrategiesWithWarning(t *testing.T) {
	c, warnings, err := NewCoordinator(
		[]string{strategy.TypeUCB1, "no-such-strategy"},
		defaultOpts, testConfigs(),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	if got := c.Active(); len(got) != 1 || got[0] != strategy.TypeUCB1 {
		t.Fatalf("unexpected active set: %v", got)
	}
}

func TestNewCoordinatorFailsWhenSetEmpties(t *testing.T) {
	_, _, err := NewCoordinator([]string{"bogus"}, defaultOpts, testConfigs())
	if !errors.Is(err, ErrEmptyStrategySet) {
		t.Fatalf("expected ErrEmptyStrategySet, got %v", err)
	}
}

func TestPlayRoundResolvesEveryStrategyFromSharedVector(t *testing.T) {
	c, _, err := NewCoordinator(
		[]string{strategy.TypeUCB1, strategy.TypeEXP3, strategy.TypeExploreThenCommit},
		defaultOpts, testConfigs(),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	rewards := map[string]float64{"a": 0.25, "b": 0.75}
	picks, warnings := c.PlayRound(rewards)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(picks) != 3 {
		t.Fatalf("expected 3 picks, got %d", len(picks))
	}
	for typeID, pick := range picks {
		if pick.Reward != rewards[pick.Arm] {
			t.Fatalf("%s resolved %f for arm %s, vector says %f", typeID, pick.Reward, pick.Arm, rewards[pick.Arm])
		}
	}
}

func TestSetActiveKeepsSurvivingStrategyState(t *testing.T) {
	c, _, err := NewCoordinator([]string{strategy.TypeUCB1}, defaultOpts, testConfigs())
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, warnings := c.PlayRound(map[string]float64{"a": 1, "b": 0}); len(warnings) != 0 {
			t.Fatalf("unexpected warnings: %v", warnings)
		}
	}
	st, _ := c.State(strategy.TypeUCB1)
	if st.Rounds != 5 {
		t.Fatalf("expected 5 rounds before reconcile, got %d", st.Rounds)
	}

	// Adding EXP3 must not reset UCB1.
	if _, err := c.SetActive([]string{strategy.TypeUCB1, strategy.TypeEXP3}, defaultOpts, testConfigs()); err != nil {
		t.Fatalf("set active: %v", err)
	}
	st, _ = c.State(strategy.TypeUCB1)
	if st.Rounds != 5 {
		t.Fatalf("ucb1 state was reset: %d rounds", st.Rounds)
	}
	fresh, ok := c.State(strategy.TypeEXP3)
	if !ok || fresh.Rounds != 0 {
		t.Fatalf("exp3 should join fresh, got %+v", fresh)
	}
}

// A strategy that errors mid-round is dropped with a warning while the
// survivors complete the round exactly once: the finite-horizon policy
// exhausts its plan after two rounds, and ucb1 must keep counting one
// update per round with no double-counting around the failure.
func TestPlayRoundDropsFailingStrategyWithoutDoubleUpdate(t *testing.T) {
	opts := func(string) strategy.Options { return strategy.Options{Seed: 3, Horizon: 2} }
	c, _, err := NewCoordinator([]string{strategy.TypeUCB1, strategy.TypeOptimalDP}, opts, testConfigs())
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	rewards := map[string]float64{"a": 1, "b": 0}
	for i := 0; i < 2; i++ {
		picks, warnings := c.PlayRound(rewards)
		if len(warnings) != 0 {
			t.Fatalf("round %d: unexpected warnings: %v", i, warnings)
		}
		if len(picks) != 2 {
			t.Fatalf("round %d: expected 2 picks, got %d", i, len(picks))
		}
	}

	picks, warnings := c.PlayRound(rewards)
	if len(warnings) != 1 {
		t.Fatalf("expected one drop warning, got %v", warnings)
	}
	if _, ok := picks[strategy.TypeOptimalDP]; ok {
		t.Fatal("exhausted policy must not pick this round")
	}
	if got := c.Active(); len(got) != 1 || got[0] != strategy.TypeUCB1 {
		t.Fatalf("active set after drop: %v", got)
	}

	st, _ := c.State(strategy.TypeUCB1)
	if st.Rounds != 3 {
		t.Fatalf("ucb1 must see exactly one update per round, got %d after 3 rounds", st.Rounds)
	}
}

func TestNotifyPermutationReachesOnlyAwareStrategies(t *testing.T) {
	c, _, err := NewCoordinator(
		[]string{strategy.TypeEXP3, strategy.TypeEXP3R},
		defaultOpts, testConfigs(),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	c.NotifyPermutation(testConfigs())

	exp3r, _ := c.State(strategy.TypeEXP3R)
	if !exp3r.ChangeDetected {
		t.Fatal("exp3-r must flag the pushed permutation")
	}
	exp3, _ := c.State(strategy.TypeEXP3)
	if exp3.ChangeDetected {
		t.Fatal("plain exp3 has no permutation hook and must stay unflagged")
	}
}
