package strategy

import (
	"errors"
	"fmt"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
)

// ErrStateNotPlanned reports a lookup past the planned horizon. Failing
// loudly here matters: silently defaulting to the first arm would mask a
// planning-horizon bug.
var ErrStateNotPlanned = errors.New("optimal policy: state beyond planned horizon")

// dpKey is a value-equal key over (pulls left to plan, per-arm
// success/failure counts). Unused slots stay zero, so two equal states
// always collide.
type dpKey struct {
	left   int
	counts [arm.MaxArms][2]uint16
}

type dpEntry struct {
	value float64
	best  int
}

// planStateBudget bounds the posterior states one plan may enumerate. The
// lookahead depth is chosen per arm count so the reachable state space
// stays under this; long horizons are planned receding-horizon instead of
// exactly.
const planStateBudget = 50000

// OptimalDP is the Bayes-optimal policy for Bernoulli arms under Beta
// priors: finite-horizon backward induction over posterior counts. The
// table is memoized lazily, and planning depth is capped by
// planStateBudget, so a long horizon costs a bounded amount per pull
// rather than enumerating the full combinatorial state space up front.
type OptimalDP struct {
	rounds int
	ids    []string
	byID   map[string]int
	counts [arm.MaxArms][2]uint16

	horizon   int
	lookahead int
	alpha     float64
	beta      float64

	memo map[dpKey]dpEntry
}

func NewOptimalDP(opts Options) *OptimalDP {
	alpha, beta := opts.priors()
	return &OptimalDP{
		horizon: opts.horizon(),
		alpha:   alpha,
		beta:    beta,
	}
}

func (s *OptimalDP) Name() string { return TypeOptimalDP }

func (s *OptimalDP) Init(configs []arm.Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("optimal policy requires at least one arm")
	}
	if len(configs) > arm.MaxArms {
		return fmt.Errorf("optimal policy supports at most %d arms, got %d", arm.MaxArms, len(configs))
	}
	for _, c := range configs {
		if c.Family != dist.Bernoulli {
			return fmt.Errorf("optimal policy requires bernoulli arms, %s is %s", c.ID, c.Family)
		}
	}
	s.rounds = 0
	s.counts = [arm.MaxArms][2]uint16{}
	s.ids = make([]string, len(configs))
	s.byID = make(map[string]int, len(configs))
	for i, c := range configs {
		s.ids[i] = c.ID
		s.byID[c.ID] = i
	}
	s.lookahead = planLookahead(len(configs), planStateBudget)
	s.memo = make(map[dpKey]dpEntry)
	return nil
}

// planLookahead returns the deepest lookahead for the given arm count
// whose reachable state space stays within budget. States reachable in at
// most d pulls over k arms number C(d+2k, 2k): each state is a
// success/failure count vector over 2k slots.
func planLookahead(arms, budget int) int {
	dim := float64(2 * arms)
	states := 1.0
	depth := 0
	for {
		next := states * (float64(depth) + 1 + dim) / (float64(depth) + 1)
		if next > float64(budget) {
			return depth
		}
		states = next
		depth++
	}
}

// SelectArm looks up the optimal action for the current posterior counts,
// planning min(horizon-rounds, lookahead) pulls ahead on demand.
func (s *OptimalDP) SelectArm() (string, error) {
	if len(s.ids) == 0 {
		return "", fmt.Errorf("optimal policy is not initialized")
	}
	if s.rounds >= s.horizon {
		return "", fmt.Errorf("round %d with horizon %d: %w", s.rounds, s.horizon, ErrStateNotPlanned)
	}
	// Receding-horizon plans share few subtrees between pulls, so the memo
	// is dropped once it outgrows a few plans' worth of states.
	if len(s.memo) > 4*planStateBudget {
		s.memo = make(map[dpKey]dpEntry)
	}
	left := s.horizon - s.rounds
	if left > s.lookahead {
		left = s.lookahead
	}
	entry := s.plan(left, s.counts)
	if entry.best < 0 {
		return "", fmt.Errorf("round %d: %w", s.rounds, ErrStateNotPlanned)
	}
	return s.ids[entry.best], nil
}

// plan runs backward induction over the next left pulls from the given
// posterior counts: the value of zero remaining pulls is zero, and each
// earlier step takes the argmax over arms of
// successProb*(1+V(success)) + (1-successProb)*V(failure).
func (s *OptimalDP) plan(left int, counts [arm.MaxArms][2]uint16) dpEntry {
	if left <= 0 {
		return dpEntry{value: 0, best: -1}
	}
	key := dpKey{left: left, counts: counts}
	if entry, ok := s.memo[key]; ok {
		return entry
	}

	best := dpEntry{value: 0, best: -1}
	for i := range s.ids {
		succ, fail := float64(counts[i][0]), float64(counts[i][1])
		successProb := (s.alpha + succ) / (s.alpha + s.beta + succ + fail)

		up := counts
		up[i][0]++
		down := counts
		down[i][1]++

		value := successProb*(1+s.plan(left-1, up).value) + (1-successProb)*s.plan(left-1, down).value
		if best.best < 0 || value > best.value {
			best = dpEntry{value: value, best: i}
		}
	}
	s.memo[key] = best
	return best
}

func (s *OptimalDP) Update(armID string, reward float64) error {
	i, ok := s.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	if reward > 0.5 {
		s.counts[i][0]++
	} else {
		s.counts[i][1]++
	}
	s.rounds++
	return nil
}

func (s *OptimalDP) Reset() {
	s.rounds = 0
	s.counts = [arm.MaxArms][2]uint16{}
	s.memo = make(map[dpKey]dpEntry)
}

func (s *OptimalDP) State() State {
	st := State{Rounds: s.rounds, Arms: make([]ArmState, len(s.ids))}
	for i, id := range s.ids {
		succ, fail := float64(s.counts[i][0]), float64(s.counts[i][1])
		pulls := int(succ + fail)
		mean := 0.0
		if pulls > 0 {
			mean = succ / (succ + fail)
		}
		st.Arms[i] = ArmState{
			ID:          id,
			Pulls:       pulls,
			TotalPayout: succ,
			Mean:        mean,
			Successes:   succ,
			Failures:    fail,
		}
	}
	return st
}
