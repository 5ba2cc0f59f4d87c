package arm

import (
	"fmt"
	"math/rand"

	"banditlab/internal/dist"
)

const (
	MinArms = 2
	MaxArms = 8
)

// Config describes one arm slot: a stable id plus the hidden distribution
// currently assigned to it.
type Config struct {
	ID     string      `json:"id"`
	Family dist.Family `json:"family"`
	Params []float64   `json:"params"`
}

func (c Config) clone() Config {
	out := c
	out.Params = append([]float64(nil), c.Params...)
	return out
}

// ValidateConfigs checks the whole arm set without mutating anything.
func ValidateConfigs(configs []Config) error {
	if len(configs) < MinArms || len(configs) > MaxArms {
		return fmt.Errorf("arm count must be in [%d, %d], got %d", MinArms, MaxArms, len(configs))
	}
	seen := make(map[string]struct{}, len(configs))
	for i, c := range configs {
		if c.ID == "" {
			return fmt.Errorf("arm %d has empty id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate arm id: %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := dist.Validate(c.Family, c.Params); err != nil {
			return fmt.Errorf("arm %s: %w", c.ID, err)
		}
	}
	return nil
}

// Registry holds the current arm set. Slots and ids are fixed after
// configuration; only a permutation may swap distributions between slots.
type Registry struct {
	configs []Config
	byID    map[string]int
}

// NewRegistry validates the configs and builds a registry. On error no
// registry state exists at all, so callers keep their previous one.
func NewRegistry(configs []Config) (*Registry, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	r := &Registry{
		configs: make([]Config, len(configs)),
		byID:    make(map[string]int, len(configs)),
	}
	for i, c := range configs {
		r.configs[i] = c.clone()
		r.byID[c.ID] = i
	}
	return r, nil
}

func (r *Registry) Len() int {
	return len(r.configs)
}

// Configs returns a deep copy of the current arm set.
func (r *Registry) Configs() []Config {
	out := make([]Config, len(r.configs))
	for i, c := range r.configs {
		out[i] = c.clone()
	}
	return out
}

func (r *Registry) Config(id string) (Config, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Config{}, false
	}
	return r.configs[i].clone(), true
}

// ExpectedValue returns the true mean of the arm's current distribution.
func (r *Registry) ExpectedValue(id string) (float64, error) {
	i, ok := r.byID[id]
	if !ok {
		return 0, fmt.Errorf("unknown arm id: %s", id)
	}
	return dist.ExpectedValue(r.configs[i].Family, r.configs[i].Params)
}

// Best returns the arm id with the highest expected value and that value.
// Ties go to the first slot.
func (r *Registry) Best() (string, float64) {
	bestID := ""
	bestEV := 0.0
	for i, c := range r.configs {
		ev, err := dist.ExpectedValue(c.Family, c.Params)
		if err != nil {
			continue
		}
		if i == 0 || ev > bestEV {
			bestID = c.ID
			bestEV = ev
		}
	}
	return bestID, bestEV
}

// Permute runs a Fisher-Yates shuffle of (family, params) across slots,
// keeping ids in place. It reshuffles until at least one slot differs, so
// a permutation is observable whenever the arm set allows one. When every
// slot carries the same distribution no reassignment is possible and the
// set is returned unchanged.
func (r *Registry) Permute(rng *rand.Rand) []Config {
	current := make([]payload, len(r.configs))
	for i, c := range r.configs {
		current[i] = payload{family: c.Family, params: c.Params}
	}
	if !payloadsVary(current) {
		return r.Configs()
	}

	shuffled := make([]payload, len(current))
	for {
		copy(shuffled, current)
		for i := len(shuffled) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}
		if payloadsDiffer(current, shuffled) {
			break
		}
	}

	for i := range r.configs {
		r.configs[i].Family = shuffled[i].family
		r.configs[i].Params = shuffled[i].params
	}
	return r.Configs()
}

type payload struct {
	family dist.Family
	params []float64
}

func payloadEqual(a, b payload) bool {
	if a.family != b.family || len(a.params) != len(b.params) {
		return false
	}
	for i := range a.params {
		if a.params[i] != b.params[i] {
			return false
		}
	}
	return true
}

func payloadsDiffer(a, b []payload) bool {
	for i := range a {
		if !payloadEqual(a[i], b[i]) {
			return true
		}
	}
	return false
}

// payloadsVary reports whether at least two slots hold different
// distributions, which is what makes a differing shuffle possible.
func payloadsVary(ps []payload) bool {
	for i := 1; i < len(ps); i++ {
		if !payloadEqual(ps[0], ps[i]) {
			return true
		}
	}
	return false
}
