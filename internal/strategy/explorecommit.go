package strategy

import (
	"fmt"

	"banditlab/internal/arm"
)

type etcArm struct {
	id    string
	pulls int
	total float64
	mean  float64
}

// ExploreThenCommit cycles arms round-robin for a fixed exploration budget,
// then commits permanently to the arm with the best empirical mean seen
// during exploration. Further evidence never changes the commitment.
type ExploreThenCommit struct {
	rounds        int
	arms          []*etcArm
	byID          map[string]*etcArm
	samplesPerArm int
	budget        int
	committed     string
	opts          Options
}

func NewExploreThenCommit(opts Options) *ExploreThenCommit {
	return &ExploreThenCommit{opts: opts}
}

func (s *ExploreThenCommit) Name() string { return TypeExploreThenCommit }

func (s *ExploreThenCommit) Init(configs []arm.Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("explore-then-commit requires at least one arm")
	}
	s.rounds = 0
	s.committed = ""
	s.samplesPerArm = s.opts.samplesPerArm(len(configs))
	s.budget = s.samplesPerArm * len(configs)
	s.arms = make([]*etcArm, len(configs))
	s.byID = make(map[string]*etcArm, len(configs))
	for i, c := range configs {
		a := &etcArm{id: c.ID}
		s.arms[i] = a
		s.byID[c.ID] = a
	}
	return nil
}

func (s *ExploreThenCommit) SelectArm() (string, error) {
	if len(s.arms) == 0 {
		return "", fmt.Errorf("explore-then-commit is not initialized")
	}
	if s.rounds < s.budget {
		return s.arms[s.rounds%len(s.arms)].id, nil
	}
	if s.committed != "" {
		return s.committed, nil
	}
	return s.bestEmpirical(), nil
}

func (s *ExploreThenCommit) bestEmpirical() string {
	best := s.arms[0]
	for _, a := range s.arms[1:] {
		if a.mean > best.mean {
			best = a
		}
	}
	return best.id
}

func (s *ExploreThenCommit) Update(armID string, reward float64) error {
	a, ok := s.byID[armID]
	if !ok {
		return fmt.Errorf("unknown arm id: %s", armID)
	}
	// Post-commit updates keep counting but must not move the commitment.
	if s.committed == "" && s.rounds < s.budget {
		a.pulls++
		a.total += reward
		a.mean = a.total / float64(a.pulls)
	}
	s.rounds++
	if s.committed == "" && s.rounds >= s.budget {
		s.committed = s.bestEmpirical()
	}
	return nil
}

func (s *ExploreThenCommit) Reset() {
	s.rounds = 0
	s.committed = ""
	for _, a := range s.arms {
		*a = etcArm{id: a.id}
	}
}

func (s *ExploreThenCommit) State() State {
	st := State{Rounds: s.rounds, Arms: make([]ArmState, len(s.arms)), Phase: PhaseExploring}
	for i, a := range s.arms {
		st.Arms[i] = ArmState{ID: a.id, Pulls: a.pulls, TotalPayout: a.total, Mean: a.mean}
	}
	if s.committed != "" {
		st.Phase = PhaseCommitted
		st.CommittedArm = s.committed
	}
	return st
}
