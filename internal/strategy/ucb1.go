package strategy

import (
	"fmt"
	"math"

	"banditlab/internal/arm"
)

type ucbArm struct {
	id    string
	pulls int
	total float64
	mean  float64
}

// UCB1 is the classic optimistic index policy: empirical mean plus an
// exploration bonus that shrinks with visit count.
type UCB1 struct {
	rounds int
	arms   []*ucbArm
	byID   map[string]*ucbArm
}

func NewUCB1() *UCB1 {
	return &UCB1{}
}

func (s *UCB1) Name() string { return TypeUCB1 }

func (s *UCB1) Init(configs []arm.Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("ucb1 requires at least one arm")
	}
	s.rounds = 0
	s.arms = make([]*ucbArm, len(configs))
	s.byID = make(map[string]*ucbArm, len(configs))
	for i, c := range configs {
		a := &ucbArm{id: c.ID}
		s.arms[i] = a
		s.byID[c.ID] = a
	}
	return nil
}

// SelectArm returns the arm with the highest UCB index. Unexplored arms
// carry an infinite index so they always win against explored ones; ties
// go to the first arm encountered in slot order.
func (s *UCB1) SelectArm() (string, error) {
	if len(s.arms) == 0 {
		return "", fmt.Errorf("ucb1 is not initialized")
	}
	best := ""
	bestIndex := math.Inf(-1)
	for _, a := range s.arms {
		index := math.Inf(1)
		if a.pulls > 0 {
			index = a.mean + math.Sqrt(2*math.Log(float64(s.rounds))/float64(a.pulls))
		}
		if index > bestIndex {
			best = a.id
			bestIndex = index
		}
	}
	return best, nil
}

func (s *UCB1) Update(armID string, reward float64) error {
	a, ok := s.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	s.rounds++
	a.pulls++
	a.total += reward
	a.mean = a.total / float64(a.pulls)
	return nil
}

func (s *UCB1) Reset() {
	s.rounds = 0
	for _, a := range s.arms {
		*a = ucbArm{id: a.id}
	}
}

func (s *UCB1) State() State {
	st := State{Rounds: s.rounds, Arms: make([]ArmState, len(s.arms))}
	for i, a := range s.arms {
		st.Arms[i] = ArmState{ID: a.id, Pulls: a.pulls, TotalPayout: a.total, Mean: a.mean}
	}
	return st
}
