package engine

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
	"banditlab/internal/strategy"
)

// Reserved series ids. Strategy series use their type id.
const (
	SeriesUser = "user"
	SeriesBest = "best"
)

// hardModePermuteProb is the per-round chance of a silent reshuffle of
// distributions across arm slots while hard mode is on.
const hardModePermuteProb = 0.05

// SessionConfig describes a full session: the arm set, the competing
// strategies, and the seed that makes the hidden reward stream replayable.
type SessionConfig struct {
	ID         string
	Seed       int64
	Arms       []arm.Config
	Strategies []string
	Options    map[string]strategy.Options
	HardMode   bool
}

// EntityResult is one tracked entity's outcome for a round.
type EntityResult struct {
	Arm       string  `json:"arm"`
	Reward    float64 `json:"reward"`
	Regret    float64 `json:"regret"`
	CumPayout float64 `json:"cum_payout"`
	CumRegret float64 `json:"cum_regret"`
}

// RoundResult is everything a round produced, for the UI layer. Warnings
// name strategies dropped from the active set during this round.
type RoundResult struct {
	Round           int                     `json:"round"`
	Permuted        bool                    `json:"permuted"`
	User            EntityResult            `json:"user"`
	Best            EntityResult            `json:"best"`
	Strategies      map[string]EntityResult `json:"strategies"`
	Recommendations map[string]string       `json:"recommendations"`
	Warnings        []string                `json:"warnings,omitempty"`
}

// RoundOutcome is the journal form of a round: the full reward vector plus
// every pick, enough to audit counterfactual consistency after the fact.
type RoundOutcome struct {
	Round    int                     `json:"round"`
	Permuted bool                    `json:"permuted"`
	UserArm  string                  `json:"user_arm"`
	Rewards  map[string]float64      `json:"rewards"`
	Picks    map[string]StrategyPick `json:"picks"`
}

// Session runs rounds synchronously end to end: permutation check, one
// shared reward draw per arm, every strategy's move, then accounting.
// Rounds never overlap, so no locking is needed here.
type Session struct {
	id       string
	seed     int64
	hardMode bool
	round    int

	registry   *arm.Registry
	sampler    *dist.Sampler
	permRng    *rand.Rand
	coord      *Coordinator
	accountant *Accountant

	// Last-applied per-type options, kept so arm reconfiguration can
	// rebuild the strategy set with the same hyperparameters.
	stratOpts map[string]strategy.Options

	journal []RoundOutcome
}

// NewSession validates the config and builds a ready session. Warnings
// list strategies that were excluded from the active set.
func NewSession(cfg SessionConfig) (*Session, []string, error) {
	registry, err := arm.NewRegistry(cfg.Arms)
	if err != nil {
		return nil, nil, err
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		id:         id,
		seed:       cfg.Seed,
		hardMode:   cfg.HardMode,
		registry:   registry,
		sampler:    dist.NewSampler(rand.New(rand.NewSource(cfg.Seed))),
		permRng:    rand.New(rand.NewSource(cfg.Seed + 1)),
		accountant: NewAccountant(),
		stratOpts:  cfg.Options,
	}

	coord, warnings, err := NewCoordinator(cfg.Strategies, s.strategyOptions(cfg.Options), registry.Configs())
	if err != nil {
		return nil, warnings, err
	}
	s.coord = coord
	return s, warnings, nil
}

// strategyOptions resolves per-type options, deriving a deterministic seed
// per type from the session seed when none was set. A Seed of zero is
// reserved to mean unset.
func (s *Session) strategyOptions(perType map[string]strategy.Options) func(string) strategy.Options {
	offsets := make(map[string]int64)
	for i, typeID := range strategy.Types() {
		offsets[typeID] = int64(i)
	}
	return func(typeID string) strategy.Options {
		opts := perType[typeID]
		if opts.Seed == 0 {
			opts.Seed = s.seed + 1000 + offsets[typeID]
		}
		return opts
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Round() int     { return s.round }
func (s *Session) Seed() int64    { return s.seed }
func (s *Session) HardMode() bool { return s.hardMode }

func (s *Session) SetHardMode(on bool) { s.hardMode = on }

// ArmConfigs returns a copy of the current arm set.
func (s *Session) ArmConfigs() []arm.Config {
	return s.registry.Configs()
}

// ActiveStrategies returns the active type ids.
func (s *Session) ActiveStrategies() []string {
	return s.coord.Active()
}

// StrategyState exposes a read-only snapshot of one strategy instance.
func (s *Session) StrategyState(typeID string) (strategy.State, bool) {
	return s.coord.State(typeID)
}

// ConfigureArms replaces the whole arm set. Validation happens before any
// mutation: an invalid set leaves the session untouched. A valid set
// rebuilds every strategy and discards all accounting.
func (s *Session) ConfigureArms(configs []arm.Config) ([]string, error) {
	registry, err := arm.NewRegistry(configs)
	if err != nil {
		return nil, err
	}

	// Rebuild the strategy set against the new arms first; nothing is
	// mutated until the whole new session state is known good.
	coord, warnings, err := NewCoordinator(s.coord.Active(), s.strategyOptions(s.stratOpts), registry.Configs())
	if err != nil {
		return warnings, err
	}

	s.registry = registry
	s.coord = coord
	s.accountant.Reset()
	s.round = 0
	s.journal = nil
	return warnings, nil
}

// Reset rebuilds the session in place: same arms, same active strategies,
// fresh accounting and journal. The rng streams are rewound to the seed so
// a reset session replays the same hidden rewards.
func (s *Session) Reset() ([]string, error) {
	s.sampler = dist.NewSampler(rand.New(rand.NewSource(s.seed)))
	s.permRng = rand.New(rand.NewSource(s.seed + 1))
	return s.ConfigureArms(s.registry.Configs())
}

// SetActiveStrategies reconciles the active set. Surviving strategies keep
// their learned state; only added types start fresh.
func (s *Session) SetActiveStrategies(typeIDs []string, perType map[string]strategy.Options) ([]string, error) {
	if perType != nil {
		s.stratOpts = perType
	}
	return s.coord.SetActive(typeIDs, s.strategyOptions(s.stratOpts), s.registry.Configs())
}

// ForcePermutation reshuffles distributions across slots and notifies the
// permutation-aware strategies. Test hook and hard-mode primitive.
func (s *Session) ForcePermutation() []arm.Config {
	configs := s.registry.Permute(s.permRng)
	s.coord.NotifyPermutation(configs)
	return configs
}

// RecordUserPull runs one full round for the user's pull of armID.
func (s *Session) RecordUserPull(armID string) (RoundResult, error) {
	if _, ok := s.registry.Config(armID); !ok {
		return RoundResult{}, fmt.Errorf("unknown arm id: %s", armID)
	}

	// Hard mode may silently reassign distributions before the pull
	// resolves, so this round already uses the permuted arms.
	permuted := false
	if s.hardMode && s.permRng.Float64() < hardModePermuteProb {
		s.ForcePermutation()
		permuted = true
	}

	rewards, err := s.drawRewards()
	if err != nil {
		return RoundResult{}, err
	}

	bestArm, bestEV := s.registry.Best()

	picks, stratWarnings := s.coord.PlayRound(rewards)

	result := RoundResult{
		Round:      s.round,
		Permuted:   permuted,
		Strategies: make(map[string]EntityResult, len(picks)),
		Warnings:   stratWarnings,
	}

	result.User, err = s.settle(SeriesUser, armID, rewards[armID], bestEV)
	if err != nil {
		return RoundResult{}, err
	}
	result.Best, err = s.settle(SeriesBest, bestArm, rewards[bestArm], bestEV)
	if err != nil {
		return RoundResult{}, err
	}
	for typeID, pick := range picks {
		entity, err := s.settle(typeID, pick.Arm, pick.Reward, bestEV)
		if err != nil {
			return RoundResult{}, err
		}
		result.Strategies[typeID] = entity
	}

	s.journal = append(s.journal, RoundOutcome{
		Round:    s.round,
		Permuted: permuted,
		UserArm:  armID,
		Rewards:  rewards,
		Picks:    picks,
	})
	s.round++

	result.Recommendations = s.coord.Recommendations()
	return result, nil
}

// drawRewards computes the round's reward vector exactly once. Every
// consumer of this round, the user included, resolves against it.
func (s *Session) drawRewards() (map[string]float64, error) {
	configs := s.registry.Configs()
	rewards := make(map[string]float64, len(configs))
	for _, c := range configs {
		v, err := s.sampler.Sample(c.Family, c.Params)
		if err != nil {
			return nil, fmt.Errorf("sample arm %s: %w", c.ID, err)
		}
		rewards[c.ID] = v
	}
	return rewards, nil
}

// settle books one entity's payout and expected-value regret for the round.
func (s *Session) settle(seriesID, armID string, reward, bestEV float64) (EntityResult, error) {
	ev, err := s.registry.ExpectedValue(armID)
	if err != nil {
		return EntityResult{}, err
	}
	regret := bestEV - ev
	if regret < 0 {
		regret = 0
	}
	s.accountant.Record(seriesID, s.round, reward, regret)
	cumPayout, cumRegret, _ := s.accountant.Cumulative(seriesID)
	return EntityResult{
		Arm:       armID,
		Reward:    reward,
		Regret:    regret,
		CumPayout: cumPayout,
		CumRegret: cumRegret,
	}, nil
}

// Series returns every tracked cumulative series.
func (s *Session) Series() map[string]Track {
	return s.accountant.Series()
}

// SeriesIDs returns tracked series ids in first-seen order.
func (s *Session) SeriesIDs() []string {
	return s.accountant.SeriesIDs()
}

// Journal returns the per-round outcome log.
func (s *Session) Journal() []RoundOutcome {
	return append([]RoundOutcome(nil), s.journal...)
}
