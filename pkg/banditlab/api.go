package banditlab

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
	"banditlab/internal/engine"
	"banditlab/internal/stats"
	"banditlab/internal/storage"
	"banditlab/internal/strategy"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "banditlab.db"
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string

	Seed       int64
	HardMode   bool
	Arms       []arm.Config
	Strategies []string
	// Per-strategy hyperparameter overrides, keyed by strategy type id.
	StrategyOptions map[string]strategy.Options
}

// Client owns one interactive session plus the run store and artifact
// directories. It is not safe for concurrent use.
type Client struct {
	store   storage.Store
	session *engine.Session

	benchmarksDir string
	exportsDir    string
}

// DefaultArms is the arm set used when none is configured: one arm per
// family flavor so every sampler path gets exercised out of the box.
func DefaultArms() []arm.Config {
	return []arm.Config{
		{ID: "slot-1", Family: dist.Normal, Params: []float64{5, 2}},
		{ID: "slot-2", Family: dist.Uniform, Params: []float64{0, 10}},
		{ID: "slot-3", Family: dist.Exponential, Params: []float64{0.25}},
		{ID: "slot-4", Family: dist.Poisson, Params: []float64{4}},
	}
}

func New(opts Options) (*Client, []string, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	arms := opts.Arms
	if len(arms) == 0 {
		arms = DefaultArms()
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = defaultStrategies(arms)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, nil, err
	}

	session, warnings, err := engine.NewSession(engine.SessionConfig{
		Seed:       opts.Seed,
		HardMode:   opts.HardMode,
		Arms:       arms,
		Strategies: strategies,
		Options:    opts.StrategyOptions,
	})
	if err != nil {
		return nil, warnings, err
	}

	return &Client{
		store:         store,
		session:       session,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, warnings, nil
}

// defaultStrategies is every available strategy, minus the
// dynamic-programming policy when any arm is non-bernoulli, since that
// policy only models bernoulli rewards.
func defaultStrategies(arms []arm.Config) []string {
	allBernoulli := true
	for _, a := range arms {
		if a.Family != dist.Bernoulli {
			allBernoulli = false
			break
		}
	}

	types := strategy.Types()
	if allBernoulli {
		return types
	}
	out := make([]string, 0, len(types))
	for _, id := range types {
		if id != strategy.TypeOptimalDP {
			out = append(out, id)
		}
	}
	return out
}

// Close flushes the interactive session, if it played any rounds, as a run
// record and artifacts, then releases the store. Close once.
func (c *Client) Close() error {
	var flushErr error
	if c.session.Round() > 0 {
		_, flushErr = c.persistRun(context.Background(), c.session, "live-"+c.session.ID(), "interactive")
	}
	if err := storage.CloseIfSupported(c.store); err != nil {
		return err
	}
	return flushErr
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Session exposes the live session for transports that drive it directly.
func (c *Client) Session() *engine.Session {
	return c.session
}

func (c *Client) ConfigureArms(configs []arm.Config) ([]string, error) {
	return c.session.ConfigureArms(configs)
}

// Reset rewinds the interactive session to round zero with the same arms,
// strategies, and seed.
func (c *Client) Reset() ([]string, error) {
	return c.session.Reset()
}

func (c *Client) SetActiveStrategies(typeIDs []string, perType map[string]strategy.Options) ([]string, error) {
	return c.session.SetActiveStrategies(typeIDs, perType)
}

func (c *Client) RecordUserPull(armID string) (engine.RoundResult, error) {
	return c.session.RecordUserPull(armID)
}

func (c *Client) Series() map[string]engine.Track {
	return c.session.Series()
}

func (c *Client) SetHardMode(on bool) {
	c.session.SetHardMode(on)
}

func (c *Client) ForcePermutation() []arm.Config {
	return c.session.ForcePermutation()
}

// User policies for headless simulation.
const (
	PolicyRandom   = "random"
	PolicyGreedyEV = "greedy-ev"
	PolicyFixed    = "fixed"
)

type SimulateRequest struct {
	Rounds     int
	Seed       int64
	Policy     string
	FixedArm   string
	HardMode   bool
	Arms       []arm.Config
	Strategies []string
	Options    map[string]strategy.Options
}

type SimulateSummary struct {
	RunID        string
	ArtifactsDir string
	Rounds       int
	Warnings     []string
	Permutations int
	Series       []stats.SeriesSummary
}

// Simulate plays a fresh session end to end under a scripted user policy,
// persists the run record and artifacts, and returns per-series summaries.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	if req.Rounds <= 0 {
		req.Rounds = 100
	}
	if req.Policy == "" {
		req.Policy = PolicyRandom
	}
	if len(req.Arms) == 0 {
		req.Arms = DefaultArms()
	}
	if len(req.Strategies) == 0 {
		req.Strategies = defaultStrategies(req.Arms)
	}
	if req.Options == nil {
		req.Options = make(map[string]strategy.Options)
	}
	// The dynamic-programming policy plans to a fixed horizon; without an
	// explicit override it must cover every simulated round.
	if dp, ok := req.Options[strategy.TypeOptimalDP]; !ok || dp.Horizon == 0 {
		dp.Horizon = req.Rounds
		req.Options[strategy.TypeOptimalDP] = dp
	}

	session, warnings, err := engine.NewSession(engine.SessionConfig{
		Seed:       req.Seed,
		HardMode:   req.HardMode,
		Arms:       req.Arms,
		Strategies: req.Strategies,
		Options:    req.Options,
	})
	if err != nil {
		return SimulateSummary{}, err
	}

	pick, err := userPolicy(req, session)
	if err != nil {
		return SimulateSummary{}, err
	}

	permutations := 0
	for i := 0; i < req.Rounds; i++ {
		result, err := session.RecordUserPull(pick())
		if err != nil {
			return SimulateSummary{}, fmt.Errorf("round %d: %w", i, err)
		}
		if result.Permuted {
			permutations++
		}
		warnings = append(warnings, result.Warnings...)
	}

	runID := fmt.Sprintf("sim-%d-%d", req.Seed, time.Now().UTC().Unix())
	runDir, err := c.persistRun(ctx, session, runID, req.Policy)
	if err != nil {
		return SimulateSummary{}, err
	}

	series := session.Series()
	summary := SimulateSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Rounds:       req.Rounds,
		Warnings:     warnings,
		Permutations: permutations,
	}
	for _, id := range session.SeriesIDs() {
		summary.Series = append(summary.Series, stats.Summarize(id, series[id]))
	}
	return summary, nil
}

// persistRun writes a finished session to the artifact tree, the run
// index, and the store. Returns the artifact directory.
func (c *Client) persistRun(ctx context.Context, session *engine.Session, runID, policy string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rounds := session.Round()
	series := session.Series()

	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			SessionID:    session.ID(),
			Seed:         session.Seed(),
			Rounds:       rounds,
			HardMode:     session.HardMode(),
			UserPolicy:   policy,
			Strategies:   session.ActiveStrategies(),
			Arms:         session.ArmConfigs(),
			CreatedAtUTC: now,
		},
		Series: series,
		Rounds: session.Journal(),
	})
	if err != nil {
		return "", err
	}

	userTrack := series[engine.SeriesUser]
	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:           runID,
		Seed:            session.Seed(),
		Rounds:          rounds,
		HardMode:        session.HardMode(),
		Strategies:      session.ActiveStrategies(),
		FinalUserPayout: lastPoint(userTrack.Payout),
		FinalUserRegret: lastPoint(userTrack.Regret),
		CreatedAtUTC:    now,
	}); err != nil {
		return "", err
	}

	if err := c.store.SaveRun(ctx, storage.RunRecord{
		VersionedRecord: storage.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:        runID,
		SessionID:    session.ID(),
		Seed:         session.Seed(),
		Rounds:       rounds,
		HardMode:     session.HardMode(),
		Strategies:   session.ActiveStrategies(),
		Arms:         session.ArmConfigs(),
		Series:       series,
		Outcomes:     session.Journal(),
		CreatedAtUTC: now,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

// userPolicy returns the pull chooser for a simulation. Policies re-read
// the live arm configs each round so hard-mode permutations are honored.
func userPolicy(req SimulateRequest, session *engine.Session) (func() string, error) {
	switch req.Policy {
	case PolicyRandom:
		rng := rand.New(rand.NewSource(req.Seed + 500))
		return func() string {
			configs := session.ArmConfigs()
			return configs[rng.Intn(len(configs))].ID
		}, nil
	case PolicyGreedyEV:
		return func() string {
			configs := session.ArmConfigs()
			best := configs[0]
			bestEV, _ := dist.ExpectedValue(best.Family, best.Params)
			for _, c := range configs[1:] {
				ev, _ := dist.ExpectedValue(c.Family, c.Params)
				if ev > bestEV {
					best, bestEV = c, ev
				}
			}
			return best.ID
		}, nil
	case PolicyFixed:
		if req.FixedArm == "" {
			return nil, errors.New("fixed policy requires an arm id")
		}
		return func() string { return req.FixedArm }, nil
	default:
		return nil, fmt.Errorf("unsupported user policy: %s", req.Policy)
	}
}

func lastPoint(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	Seed            int64
	Rounds          int
	HardMode        bool
	Strategies      []string
	FinalUserPayout float64
	FinalUserRegret float64
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:           e.RunID,
			CreatedAtUTC:    e.CreatedAtUTC,
			Seed:            e.Seed,
			Rounds:          e.Rounds,
			HardMode:        e.HardMode,
			Strategies:      e.Strategies,
			FinalUserPayout: e.FinalUserPayout,
			FinalUserRegret: e.FinalUserRegret,
		})
	}
	return out, nil
}

// Run loads one persisted run record from the store.
func (c *Client) Run(ctx context.Context, runID string) (storage.RunRecord, error) {
	if runID == "" {
		return storage.RunRecord{}, errors.New("run id is required")
	}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return storage.RunRecord{}, err
	}
	if !ok {
		return storage.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return record, nil
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.benchmarksDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// StrategyDescriptors re-exports the UI metadata for the available
// strategies.
func StrategyDescriptors() []strategy.Descriptor {
	return strategy.Descriptors()
}
