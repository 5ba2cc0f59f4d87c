package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
	"banditlab/internal/server"
	"banditlab/internal/storage"
	"banditlab/internal/strategy"
	api "banditlab/pkg/banditlab"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "strategies":
		return runStrategies(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runStrategies(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit strategies as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	descriptors := api.StrategyDescriptors()
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	for _, d := range descriptors {
		fmt.Printf("id=%s name=%q color=%s\n", d.ID, d.DisplayName, d.Color)
	}
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	rounds := fs.Int("rounds", 100, "rounds to play")
	seed := fs.Int64("seed", 0, "deterministic seed")
	policy := fs.String("policy", api.PolicyRandom, "user policy: random|greedy-ev|fixed")
	fixedArm := fs.String("fixed-arm", "", "arm id for the fixed policy")
	hardMode := fs.Bool("hard-mode", false, "enable random arm permutations")
	armsSpec := fs.String("arms", "", "arm specs id:family:p1[:p2], comma separated (default built-in set)")
	strategiesSpec := fs.String("strategies", "", "strategy type ids, comma separated (default all compatible)")
	dpHorizon := fs.Int("dp-horizon", 0, "planning horizon for optimal-dp (default rounds)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "banditlab.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rounds <= 0 {
		return errors.New("rounds must be > 0")
	}

	arms, err := parseArmSpecs(*armsSpec)
	if err != nil {
		return err
	}

	client, warnings, err := api.New(api.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if err := client.Init(ctx); err != nil {
		return err
	}

	req := api.SimulateRequest{
		Rounds:     *rounds,
		Seed:       *seed,
		Policy:     *policy,
		FixedArm:   *fixedArm,
		HardMode:   *hardMode,
		Arms:       arms,
		Strategies: splitList(*strategiesSpec),
	}
	if *dpHorizon > 0 {
		req.Options = map[string]strategy.Options{
			strategy.TypeOptimalDP: {Horizon: *dpHorizon},
		}
	}

	summary, err := client.Simulate(ctx, req)
	if err != nil {
		return err
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("run_id=%s rounds=%d permutations=%d artifacts=%s\n",
		summary.RunID, summary.Rounds, summary.Permutations, summary.ArtifactsDir)
	for _, s := range summary.Series {
		fmt.Printf("series=%s payout=%.4f regret=%.4f mean_per_round=%.4f std=%.4f\n",
			s.SeriesID, s.FinalPayout, s.FinalRegret, s.MeanPerRound, s.StdPerRound)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := api.New(api.Options{
		StoreKind:     "memory",
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created=%s seed=%d rounds=%d hard_mode=%t strategies=%s payout=%.4f regret=%.4f\n",
			r.RunID, r.CreatedAtUTC, r.Seed, r.Rounds, r.HardMode,
			strings.Join(r.Strategies, ","), r.FinalUserPayout, r.FinalUserRegret)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", exportsDir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := api.New(api.Options{
		StoreKind:     "memory",
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, api.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	seed := fs.Int64("seed", 0, "deterministic seed")
	hardMode := fs.Bool("hard-mode", false, "enable random arm permutations")
	armsSpec := fs.String("arms", "", "arm specs id:family:p1[:p2], comma separated (default built-in set)")
	strategiesSpec := fs.String("strategies", "", "strategy type ids, comma separated (default all compatible)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "banditlab.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	arms, err := parseArmSpecs(*armsSpec)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	client, warnings, err := api.New(api.Options{
		StoreKind:  *storeKind,
		DBPath:     *dbPath,
		Seed:       *seed,
		HardMode:   *hardMode,
		Arms:       arms,
		Strategies: splitList(*strategiesSpec),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	for _, w := range warnings {
		logger.Warn("strategy excluded", "reason", w)
	}
	if err := client.Init(ctx); err != nil {
		return err
	}

	srv := server.New(client.Session(), logger)
	logger.Info("listening", "addr", *addr)
	return srv.Router().Run(*addr)
}

// parseArmSpecs turns "a:bernoulli:0.3,b:normal:5:2" into arm configs.
// Empty input means the caller's defaults apply.
func parseArmSpecs(spec string) ([]arm.Config, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var configs []arm.Config
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 3 {
			return nil, fmt.Errorf("arm spec %q must be id:family:p1[:p2]", part)
		}

		family, err := dist.ParseFamily(fields[1])
		if err != nil {
			return nil, err
		}
		params := make([]float64, 0, len(fields)-2)
		for _, raw := range fields[2:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("arm spec %q: bad parameter %q", part, raw)
			}
			params = append(params, v)
		}
		configs = append(configs, arm.Config{ID: fields[0], Family: family, Params: params})
	}
	return configs, nil
}

func splitList(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(spec, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: banditctl <strategies|simulate|runs|export|serve> [flags]", msg)
}
