package engine

import (
	"errors"
	"fmt"

	"banditlab/internal/arm"
	"banditlab/internal/strategy"
)

// ErrEmptyStrategySet reports that every requested strategy failed to
// construct. Proceeding silently with zero competitors would make the
// session meaningless, so the caller must see this.
var ErrEmptyStrategySet = errors.New("no strategies in active set")

// StrategyPick is one strategy's resolved move for a round.
type StrategyPick struct {
	Arm    string
	Reward float64
}

// Coordinator owns the active strategy instances, keyed by type id, and
// drives each one's select/resolve/update cycle. Strategies never observe
// each other's state; the coordinator is the only writer of the set.
type Coordinator struct {
	strategies map[string]strategy.Strategy
	order      []string
}

// NewCoordinator builds the active set against the given arm configs. A
// strategy that fails to construct or initialize is excluded and reported
// in warnings; if that empties the set the error is surfaced instead.
func NewCoordinator(typeIDs []string, opts func(typeID string) strategy.Options, configs []arm.Config) (*Coordinator, []string, error) {
	c := &Coordinator{strategies: make(map[string]strategy.Strategy)}
	warnings, err := c.SetActive(typeIDs, opts, configs)
	if err != nil {
		return nil, warnings, err
	}
	return c, warnings, nil
}

// SetActive reconciles the active set with the requested type ids. Already
// active strategies keep their learned state; only added types are
// constructed and initialized, and removed types are dropped.
func (c *Coordinator) SetActive(typeIDs []string, opts func(typeID string) strategy.Options, configs []arm.Config) ([]string, error) {
	requested := make(map[string]struct{}, len(typeIDs))
	var warnings []string

	next := make(map[string]strategy.Strategy, len(typeIDs))
	var order []string
	for _, typeID := range typeIDs {
		if _, dup := requested[typeID]; dup {
			continue
		}
		requested[typeID] = struct{}{}

		if existing, ok := c.strategies[typeID]; ok {
			next[typeID] = existing
			order = append(order, typeID)
			continue
		}

		s, err := strategy.New(typeID, opts(typeID))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("strategy %s excluded: %v", typeID, err))
			continue
		}
		if err := s.Init(configs); err != nil {
			warnings = append(warnings, fmt.Sprintf("strategy %s excluded: %v", typeID, err))
			continue
		}
		next[typeID] = s
		order = append(order, typeID)
	}

	if len(next) == 0 {
		return warnings, ErrEmptyStrategySet
	}
	c.strategies = next
	c.order = order
	return warnings, nil
}

// Active returns the active type ids in registration order.
func (c *Coordinator) Active() []string {
	return append([]string(nil), c.order...)
}

func (c *Coordinator) State(typeID string) (strategy.State, bool) {
	s, ok := c.strategies[typeID]
	if !ok {
		return strategy.State{}, false
	}
	return s.State(), true
}

// PlayRound runs one select/resolve/update cycle per strategy against the
// shared reward vector. Every strategy is judged on the same hidden luck:
// its reward comes from the one vector computed for this round.
//
// Selection for every strategy happens before any update, so a failing
// strategy never leaves the survivors half-updated for an aborted round.
// A strategy that errors is dropped from the active set and reported in
// warnings; the round itself always completes.
func (c *Coordinator) PlayRound(rewards map[string]float64) (map[string]StrategyPick, []string) {
	var warnings []string

	type selection struct {
		typeID string
		armID  string
	}
	order := append([]string(nil), c.order...)
	selections := make([]selection, 0, len(order))
	for _, typeID := range order {
		armID, err := c.strategies[typeID].SelectArm()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("strategy %s dropped: %v", typeID, err))
			c.remove(typeID)
			continue
		}
		if _, ok := rewards[armID]; !ok {
			warnings = append(warnings, fmt.Sprintf("strategy %s dropped: chose unknown arm %s", typeID, armID))
			c.remove(typeID)
			continue
		}
		selections = append(selections, selection{typeID: typeID, armID: armID})
	}

	picks := make(map[string]StrategyPick, len(selections))
	for _, sel := range selections {
		reward := rewards[sel.armID]
		if err := c.strategies[sel.typeID].Update(sel.armID, reward); err != nil {
			warnings = append(warnings, fmt.Sprintf("strategy %s dropped: %v", sel.typeID, err))
			c.remove(sel.typeID)
			continue
		}
		picks[sel.typeID] = StrategyPick{Arm: sel.armID, Reward: reward}
	}
	return picks, warnings
}

func (c *Coordinator) remove(typeID string) {
	delete(c.strategies, typeID)
	for i, id := range c.order {
		if id == typeID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Recommendations re-reads each strategy's current pick after all updates
// for the round have been applied.
func (c *Coordinator) Recommendations() map[string]string {
	out := make(map[string]string, len(c.order))
	for _, typeID := range c.order {
		armID, err := c.strategies[typeID].SelectArm()
		if err != nil {
			continue
		}
		out[typeID] = armID
	}
	return out
}

// NotifyPermutation pushes the new configs to every strategy that opted
// into the capability; the rest are left to detect drift on their own.
func (c *Coordinator) NotifyPermutation(configs []arm.Config) {
	for _, typeID := range c.order {
		if aware, ok := c.strategies[typeID].(strategy.PermutationAware); ok {
			aware.HandlePermutation(configs)
		}
	}
}
