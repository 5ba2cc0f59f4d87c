package strategy

import (
	"fmt"
	"math"
	"math/rand"

	"banditlab/internal/arm"
)

// EXP3 is the exponential-weights algorithm for adversarial bandits. A
// gamma fraction of uniform exploration keeps every arm's probability
// floored, so importance-weighted estimates stay bounded.
type EXP3 struct {
	rounds int
	ids    []string
	byID   map[string]int

	weights []float64
	probs   []float64

	gamma     float64
	eta       float64
	rewardMin float64
	rewardMax float64

	rng *rand.Rand
}

func NewEXP3(opts Options) *EXP3 {
	minR, maxR := opts.rewardRange()
	return &EXP3{
		gamma:     opts.gamma(),
		eta:       opts.eta(),
		rewardMin: minR,
		rewardMax: maxR,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
}

func (s *EXP3) Name() string { return TypeEXP3 }

func (s *EXP3) Init(configs []arm.Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("exp3 requires at least one arm")
	}
	s.rounds = 0
	s.ids = make([]string, len(configs))
	s.byID = make(map[string]int, len(configs))
	s.weights = make([]float64, len(configs))
	s.probs = make([]float64, len(configs))
	for i, c := range configs {
		s.ids[i] = c.ID
		s.byID[c.ID] = i
		s.weights[i] = 1
	}
	s.recomputeProbabilities()
	return nil
}

// SelectArm draws one categorical sample from the current probabilities.
func (s *EXP3) SelectArm() (string, error) {
	if len(s.ids) == 0 {
		return "", fmt.Errorf("exp3 is not initialized")
	}
	u := s.rng.Float64()
	acc := 0.0
	for i, p := range s.probs {
		acc += p
		if u < acc {
			return s.ids[i], nil
		}
	}
	return s.ids[len(s.ids)-1], nil
}

func (s *EXP3) Update(armID string, reward float64) error {
	i, ok := s.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	s.rounds++
	s.applyReward(i, reward)
	return nil
}

// applyReward normalizes the reward to [0,1], importance-weights it by the
// chosen arm's probability, and bumps only that arm's weight.
func (s *EXP3) applyReward(i int, reward float64) {
	k := float64(len(s.ids))
	norm := (reward - s.rewardMin) / (s.rewardMax - s.rewardMin)
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	estimate := norm / s.probs[i]
	s.weights[i] *= math.Exp(s.eta * estimate / k)
	s.recomputeProbabilities()
}

func (s *EXP3) recomputeProbabilities() {
	k := float64(len(s.ids))
	total := 0.0
	for _, w := range s.weights {
		total += w
	}
	if total <= 0 || math.IsInf(total, 1) || math.IsNaN(total) {
		// Degenerate weights: fall back to uniform rather than divide by
		// zero or propagate overflow.
		for i := range s.weights {
			s.weights[i] = 1
		}
		total = k
	}
	for i, w := range s.weights {
		s.probs[i] = (1-s.gamma)*(w/total) + s.gamma/k
	}
}

func (s *EXP3) Reset() {
	s.rounds = 0
	for i := range s.weights {
		s.weights[i] = 1
	}
	s.recomputeProbabilities()
}

// Probabilities returns a copy of the current selection distribution.
func (s *EXP3) Probabilities() []float64 {
	return append([]float64(nil), s.probs...)
}

func (s *EXP3) State() State {
	st := State{Rounds: s.rounds, Arms: make([]ArmState, len(s.ids))}
	for i, id := range s.ids {
		st.Arms[i] = ArmState{ID: id, Weight: s.weights[i], Probability: s.probs[i]}
	}
	return st
}
