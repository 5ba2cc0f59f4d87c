package strategy

import (
	"fmt"
	"math"

	"banditlab/internal/arm"
)

const (
	exp3rMinPulls      = 10
	exp3rResetCooldown = 10
	exp3rFlagRounds    = 30
	exp3rMinStddev     = 0.01
)

type exp3rArm struct {
	pulls     int
	total     float64
	window    []float64
	lastReset int
}

// EXP3R wraps EXP3 with per-arm drift detection: when an arm's windowed
// mean drifts too far from its running mean, that arm's weight alone is
// reset. A permutation notification resets every arm unconditionally.
type EXP3R struct {
	exp3 *EXP3
	arms []*exp3rArm

	windowSize int
	multiplier float64

	changeDetected bool
	changeRound    int
}

func NewEXP3R(opts Options) *EXP3R {
	return &EXP3R{
		exp3:       NewEXP3(opts),
		windowSize: opts.windowSize(),
		multiplier: opts.thresholdMultiplier(),
	}
}

func (s *EXP3R) Name() string { return TypeEXP3R }

func (s *EXP3R) Init(configs []arm.Config) error {
	if err := s.exp3.Init(configs); err != nil {
		return err
	}
	s.arms = make([]*exp3rArm, len(configs))
	for i := range configs {
		s.arms[i] = &exp3rArm{}
	}
	s.changeDetected = false
	s.changeRound = 0
	return nil
}

func (s *EXP3R) SelectArm() (string, error) {
	return s.exp3.SelectArm()
}

func (s *EXP3R) Update(armID string, reward float64) error {
	i, ok := s.exp3.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	if err := s.exp3.Update(armID, reward); err != nil {
		return err
	}

	a := s.arms[i]
	a.pulls++
	a.total += reward
	a.window = append(a.window, reward)
	if len(a.window) > s.windowSize {
		a.window = a.window[len(a.window)-s.windowSize:]
	}

	// Detection flag decays on its own once the reset has had time to
	// re-learn.
	if s.changeDetected && s.exp3.rounds-s.changeRound >= exp3rFlagRounds {
		s.changeDetected = false
	}

	s.maybeReset(i, a)
	return nil
}

// maybeReset declares a local change for one arm when its window mean has
// drifted from its running mean by more than multiplier standard
// deviations.
func (s *EXP3R) maybeReset(i int, a *exp3rArm) {
	if a.pulls < exp3rMinPulls {
		return
	}
	if s.exp3.rounds-a.lastReset < exp3rResetCooldown {
		return
	}
	windowMean, stddev := windowStats(a.window)
	if stddev <= exp3rMinStddev {
		return
	}
	runningMean := a.total / float64(a.pulls)
	if math.Abs(windowMean-runningMean) <= s.multiplier*stddev {
		return
	}

	s.exp3.weights[i] = 1
	s.exp3.recomputeProbabilities()
	a.window = a.window[:0]
	a.lastReset = s.exp3.rounds
	s.changeDetected = true
	s.changeRound = s.exp3.rounds
}

// HandlePermutation resets every arm's weight and window unconditionally.
// This is a push from the permutation controller, not self-detected drift.
func (s *EXP3R) HandlePermutation(_ []arm.Config) {
	for i := range s.exp3.weights {
		s.exp3.weights[i] = 1
	}
	s.exp3.recomputeProbabilities()
	for _, a := range s.arms {
		a.window = a.window[:0]
		a.lastReset = s.exp3.rounds
	}
	s.changeDetected = true
	s.changeRound = s.exp3.rounds
}

func (s *EXP3R) Reset() {
	s.exp3.Reset()
	for _, a := range s.arms {
		*a = exp3rArm{}
	}
	s.changeDetected = false
	s.changeRound = 0
}

// Probabilities returns a copy of the current selection distribution.
func (s *EXP3R) Probabilities() []float64 {
	return s.exp3.Probabilities()
}

func (s *EXP3R) State() State {
	st := s.exp3.State()
	for i, a := range s.arms {
		st.Arms[i].Pulls = a.pulls
		st.Arms[i].TotalPayout = a.total
		if a.pulls > 0 {
			st.Arms[i].Mean = a.total / float64(a.pulls)
		}
	}
	st.ChangeDetected = s.changeDetected
	return st
}

func windowStats(window []float64) (mean, stddev float64) {
	if len(window) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	mean = sum / float64(len(window))
	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window))
	return mean, math.Sqrt(variance)
}
