package strategy

import (
	"fmt"
	"math"

	"banditlab/internal/arm"
)

type nsArm struct {
	id    string
	pulls int
	total float64
	mean  float64

	window []float64

	// Page-Hinkley accumulators.
	phSum float64
	phMin float64

	changeDetected  bool
	lastChangePoint int
}

// NonStationaryUCB is UCB1 with a per-arm sliding reward window and a
// Page-Hinkley drift test. After a detected change the arm's mean comes
// from the post-change window and its exploration bonus widens.
type NonStationaryUCB struct {
	rounds      int
	arms        []*nsArm
	byID        map[string]*nsArm
	windowSize  int
	delta       float64
	phThreshold float64
}

func NewNonStationaryUCB(opts Options) *NonStationaryUCB {
	return &NonStationaryUCB{
		windowSize:  opts.windowSize(),
		delta:       opts.driftDelta(),
		phThreshold: opts.phThreshold(),
	}
}

func (s *NonStationaryUCB) Name() string { return TypeNonStationaryUCB }

func (s *NonStationaryUCB) Init(configs []arm.Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("nonstationary ucb requires at least one arm")
	}
	s.rounds = 0
	s.arms = make([]*nsArm, len(configs))
	s.byID = make(map[string]*nsArm, len(configs))
	for i, c := range configs {
		a := &nsArm{id: c.ID}
		s.arms[i] = a
		s.byID[c.ID] = a
	}
	return nil
}

func (s *NonStationaryUCB) SelectArm() (string, error) {
	if len(s.arms) == 0 {
		return "", fmt.Errorf("nonstationary ucb is not initialized")
	}
	best := ""
	bestIndex := math.Inf(-1)
	for _, a := range s.arms {
		index := math.Inf(1)
		if a.pulls > 0 {
			effective := a.pulls
			if a.changeDetected {
				effective = a.pulls - a.lastChangePoint
				if effective < 1 {
					effective = 1
				}
			}
			index = s.adaptiveMean(a) + math.Sqrt(3*math.Log(float64(s.rounds))/float64(effective))
		}
		if index > bestIndex {
			best = a.id
			bestIndex = index
		}
	}
	return best, nil
}

// adaptiveMean averages the post-change slice of the window once a change
// was detected, otherwise the full window.
func (s *NonStationaryUCB) adaptiveMean(a *nsArm) float64 {
	window := a.window
	if a.changeDetected {
		since := a.pulls - a.lastChangePoint
		if since < len(window) {
			window = window[len(window)-since:]
		}
	}
	if len(window) == 0 {
		return a.mean
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

func (s *NonStationaryUCB) Update(armID string, reward float64) error {
	a, ok := s.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	priorMean := a.mean

	s.rounds++
	a.pulls++
	a.total += reward
	a.mean = a.total / float64(a.pulls)

	a.window = append(a.window, reward)
	if len(a.window) > s.windowSize {
		a.window = a.window[len(a.window)-s.windowSize:]
	}

	// Page-Hinkley: accumulate positive drift above the allowance, track
	// the running minimum, and flag when the gap exceeds the threshold.
	deviation := reward - priorMean - s.delta
	a.phSum = math.Max(0, a.phSum+deviation)
	if a.phSum < a.phMin {
		a.phMin = a.phSum
	}
	if a.pulls-a.lastChangePoint > 5 && a.phSum-a.phMin > s.phThreshold {
		a.changeDetected = true
		a.lastChangePoint = a.pulls
		a.phSum = 0
		a.phMin = 0
	}
	return nil
}

func (s *NonStationaryUCB) Reset() {
	s.rounds = 0
	for _, a := range s.arms {
		*a = nsArm{id: a.id}
	}
}

func (s *NonStationaryUCB) State() State {
	st := State{Rounds: s.rounds, Arms: make([]ArmState, len(s.arms))}
	for i, a := range s.arms {
		st.Arms[i] = ArmState{ID: a.id, Pulls: a.pulls, TotalPayout: a.total, Mean: a.mean}
		if a.changeDetected {
			st.ChangeDetected = true
		}
	}
	return st
}
