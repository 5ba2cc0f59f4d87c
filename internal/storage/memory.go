package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]RunRecord
	order       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]RunRecord)
	s.order = nil
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if record.RunID == "" {
		return errors.New("run id is required")
	}
	if _, exists := s.runs[record.RunID]; exists {
		return fmt.Errorf("run %s already recorded", record.RunID)
	}

	// Round-trip through the codec so memory and sqlite reject the same
	// malformed records.
	payload, err := EncodeRunRecord(record)
	if err != nil {
		return err
	}
	copied, err := DecodeRunRecord(payload)
	if err != nil {
		return err
	}

	s.runs[record.RunID] = copied
	s.order = append(s.order, record.RunID)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.runs[runID]
	return record, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]RunRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.runs[id])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAtUTC > records[j].CreatedAtUTC
	})
	return records, nil
}
