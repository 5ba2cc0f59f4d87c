package storage

import (
	"context"

	"banditlab/internal/arm"
	"banditlab/internal/engine"
)

// RunRecord is the persisted form of a completed run: enough to replay or
// audit it, never enough to resume it.
type RunRecord struct {
	VersionedRecord
	RunID        string                  `json:"run_id"`
	SessionID    string                  `json:"session_id,omitempty"`
	Seed         int64                   `json:"seed"`
	Rounds       int                     `json:"rounds"`
	HardMode     bool                    `json:"hard_mode"`
	Strategies   []string                `json:"strategies"`
	Arms         []arm.Config            `json:"arms"`
	Series       map[string]engine.Track `json:"series"`
	Outcomes     []engine.RoundOutcome   `json:"outcomes"`
	CreatedAtUTC string                  `json:"created_at_utc"`
}

// Store persists completed runs. Records are write-once: a run is saved
// after its rounds finish and is never mutated afterwards.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, record RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
}
