package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"banditlab/internal/arm"
	"banditlab/internal/engine"
)

const runIndexFile = "run_index.json"

// RunConfig is the replayable description of a completed run: the arm
// set, the active strategies, and the seed that drove every draw.
type RunConfig struct {
	RunID        string       `json:"run_id"`
	SessionID    string       `json:"session_id,omitempty"`
	Seed         int64        `json:"seed"`
	Rounds       int          `json:"rounds"`
	HardMode     bool         `json:"hard_mode"`
	UserPolicy   string       `json:"user_policy,omitempty"`
	Strategies   []string     `json:"strategies"`
	Arms         []arm.Config `json:"arms"`
	CreatedAtUTC string       `json:"created_at_utc"`
}

// RunArtifacts is everything a run leaves behind for offline analysis.
type RunArtifacts struct {
	Config RunConfig               `json:"config"`
	Series map[string]engine.Track `json:"series"`
	Rounds []engine.RoundOutcome   `json:"rounds"`
}

type RunIndexEntry struct {
	RunID           string   `json:"run_id"`
	Seed            int64    `json:"seed"`
	Rounds          int      `json:"rounds"`
	HardMode        bool     `json:"hard_mode"`
	Strategies      []string `json:"strategies"`
	FinalUserPayout float64  `json:"final_user_payout"`
	FinalUserRegret float64  `json:"final_user_regret"`
	CreatedAtUTC    string   `json:"created_at_utc"`
}

// WriteRunArtifacts lays a run down under baseDir/<runID>/ as config.json,
// series.json, rounds.json and a flat rounds.csv, and returns the run dir.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "series.json"), artifacts.Series); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "rounds.json"), artifacts.Rounds); err != nil {
		return "", err
	}
	if err := writeRoundsCSV(filepath.Join(runDir, "rounds.csv"), artifacts.Config.Arms, artifacts.Rounds); err != nil {
		return "", err
	}

	return runDir, nil
}

// writeRoundsCSV flattens the per-round reward vectors into one row per
// round with a column per arm, in the configured arm order.
func writeRoundsCSV(path string, arms []arm.Config, rounds []engine.RoundOutcome) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := []string{"round", "permuted", "user_arm"}
	for _, a := range arms {
		header = append(header, a.ID)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, outcome := range rounds {
		row := []string{
			strconv.Itoa(outcome.Round),
			strconv.FormatBool(outcome.Permuted),
			outcome.UserArm,
		}
		for _, a := range arms {
			row = append(row, strconv.FormatFloat(outcome.Rewards[a.ID], 'f', -1, 64))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "series.json", "rounds.json", "rounds.csv"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadSeries(baseDir, runID string) (map[string]engine.Track, bool, error) {
	path := filepath.Join(baseDir, runID, "series.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var series map[string]engine.Track
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, false, err
	}
	return series, true, nil
}

// ReadRoundsCSV returns the per-arm reward columns keyed by arm id.
func ReadRoundsCSV(baseDir, runID string) (map[string][]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "rounds.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return map[string][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("rounds csv header must have at least 4 columns")
	}
	armIDs := header[3:]

	columns := make(map[string][]float64, len(armIDs))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) != len(header) {
			return nil, false, fmt.Errorf("rounds csv row has %d columns, want %d", len(record), len(header))
		}
		for i, id := range armIDs {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[3+i]), 64)
			if err != nil {
				return nil, false, err
			}
			columns[id] = append(columns[id], value)
		}
	}
	return columns, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
