package strategy

import (
	"banditlab/internal/arm"
)

// Strategy is the contract every bandit policy implements. SelectArm must
// not mutate learning state; all learning happens in Update.
type Strategy interface {
	Name() string
	Init(configs []arm.Config) error
	SelectArm() (string, error)
	Update(armID string, reward float64) error
	Reset()
	State() State
}

// PermutationAware is an optional capability for strategies that want a
// push notification when arm distributions are reassigned across slots.
// Detected by type assertion, never by name probing.
type PermutationAware interface {
	HandlePermutation(configs []arm.Config)
}

// ArmState is a read-only snapshot of one arm's learned statistics.
type ArmState struct {
	ID          string  `json:"id"`
	Pulls       int     `json:"pulls"`
	TotalPayout float64 `json:"total_payout"`
	Mean        float64 `json:"mean"`
	Weight      float64 `json:"weight,omitempty"`
	Probability float64 `json:"probability,omitempty"`
	Successes   float64 `json:"successes,omitempty"`
	Failures    float64 `json:"failures,omitempty"`
}

// Phase values for strategies with a discrete lifecycle.
const (
	PhaseExploring = "exploring"
	PhaseCommitted = "committed"
)

// State is a read-only snapshot of a strategy instance.
type State struct {
	Rounds         int        `json:"rounds"`
	Arms           []ArmState `json:"arms"`
	Phase          string     `json:"phase,omitempty"`
	CommittedArm   string     `json:"committed_arm,omitempty"`
	ChangeDetected bool       `json:"change_detected,omitempty"`
}

// Options carries hyperparameters shared across strategy constructors.
// Zero values are replaced by per-strategy defaults.
type Options struct {
	// Seed seeds the strategy's rng. Zero is reserved to mean unset: the
	// session replaces it with a seed derived from its own. Callers who
	// want a literal zero should pass any other fixed value.
	Seed int64

	// Non-stationary UCB.
	WindowSize  int
	DriftDelta  float64
	PHThreshold float64

	// EXP3 family.
	Gamma               float64
	Eta                 float64
	RewardMin           float64
	RewardMax           float64
	ThresholdMultiplier float64

	// Explore-then-commit.
	SamplesPerArm int

	// Optimal DP policy.
	Horizon    int
	AlphaPrior float64
	BetaPrior  float64
}

const (
	defaultWindowSize          = 20
	defaultDriftDelta          = 0.005
	defaultPHThreshold         = 50.0
	defaultGamma               = 0.1
	defaultEta                 = 0.1
	defaultRewardMin           = -10.0
	defaultRewardMax           = 10.0
	defaultThresholdMultiplier = 2.0
	defaultHorizon             = 1000
	defaultAlphaPrior          = 1.0
	defaultBetaPrior           = 1.0
)

func (o Options) windowSize() int {
	if o.WindowSize <= 0 {
		return defaultWindowSize
	}
	return o.WindowSize
}

func (o Options) driftDelta() float64 {
	if o.DriftDelta <= 0 {
		return defaultDriftDelta
	}
	return o.DriftDelta
}

func (o Options) phThreshold() float64 {
	if o.PHThreshold <= 0 {
		return defaultPHThreshold
	}
	return o.PHThreshold
}

func (o Options) gamma() float64 {
	if o.Gamma <= 0 {
		return defaultGamma
	}
	return o.Gamma
}

func (o Options) eta() float64 {
	if o.Eta <= 0 {
		return defaultEta
	}
	return o.Eta
}

func (o Options) rewardRange() (float64, float64) {
	if o.RewardMin == 0 && o.RewardMax == 0 {
		return defaultRewardMin, defaultRewardMax
	}
	return o.RewardMin, o.RewardMax
}

func (o Options) thresholdMultiplier() float64 {
	if o.ThresholdMultiplier <= 0 {
		return defaultThresholdMultiplier
	}
	return o.ThresholdMultiplier
}

func (o Options) horizon() int {
	if o.Horizon <= 0 {
		return defaultHorizon
	}
	return o.Horizon
}

func (o Options) priors() (float64, float64) {
	alpha := o.AlphaPrior
	if alpha <= 0 {
		alpha = defaultAlphaPrior
	}
	beta := o.BetaPrior
	if beta <= 0 {
		beta = defaultBetaPrior
	}
	return alpha, beta
}

// samplesPerArm defaults to clamp(ceil(100/k), 10, 30) unless overridden.
func (o Options) samplesPerArm(k int) int {
	if o.SamplesPerArm > 0 {
		return o.SamplesPerArm
	}
	if k <= 0 {
		return 10
	}
	n := (100 + k - 1) / k
	if n < 10 {
		n = 10
	}
	if n > 30 {
		n = 30
	}
	return n
}
