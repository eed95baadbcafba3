package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

type batchState struct {
	batch leadership.Batch
	done  chan struct{}
}

// BatchStore keeps batches and their results in memory.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*batchState
	clock   leadership.Clock
}

var _ leadership.BatchStore = (*BatchStore)(nil)

// NewBatchStore constructs a BatchStore.
func NewBatchStore(clock leadership.Clock) *BatchStore {
	return &BatchStore{batches: make(map[string]*batchState), clock: clock}
}

// CreateBatch stores a new batch in queued status with one empty result slot
// per company.
func (s *BatchStore) CreateBatch(_ context.Context, batch leadership.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("batch %s already exists", batch.ID)
	}
	batch.Status = leadership.BatchStatusQueued
	batch.Results = make([]*leadership.Result, len(batch.Companies))
	batch.Counters = leadership.BatchCounters{Total: len(batch.Companies)}
	batch.Finished = nil
	st := &batchState{batch: batch, done: make(chan struct{})}
	s.batches[batch.ID] = st
	if len(batch.Companies) == 0 {
		s.finishLocked(st, leadership.BatchStatusCompleted)
	}
	return nil
}

// MarkRunning moves a queued batch to running.
func (s *BatchStore) MarkRunning(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, leadership.ErrNotFound)
	}
	if st.batch.Status == leadership.BatchStatusQueued {
		st.batch.Status = leadership.BatchStatusRunning
	}
	return nil
}

// RecordResult stores the result for the company at index. The first
// result for a slot wins; results arriving after the batch finished are
// dropped.
func (s *BatchStore) RecordResult(_ context.Context, batchID string, index int, result leadership.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, leadership.ErrNotFound)
	}
	if index < 0 || index >= len(st.batch.Results) {
		return fmt.Errorf("batch %s: result index %d out of range", batchID, index)
	}
	if isTerminal(st.batch.Status) || st.batch.Results[index] != nil {
		return nil
	}
	res := result
	st.batch.Results[index] = &res
	count(&st.batch.Counters, res)
	if st.batch.Counters.Done == st.batch.Counters.Total {
		s.finishLocked(st, terminalStatus(st.batch.Counters))
	}
	return nil
}

// Finalize closes a batch. Companies without a result are recorded as
// timed out.
func (s *BatchStore) Finalize(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, leadership.ErrNotFound)
	}
	if isTerminal(st.batch.Status) {
		return nil
	}
	for i, res := range st.batch.Results {
		if res != nil {
			continue
		}
		company := st.batch.Companies[i]
		placeholder := leadership.TimedOutResult(cache.Key(company), company)
		st.batch.Results[i] = &placeholder
		count(&st.batch.Counters, placeholder)
	}
	s.finishLocked(st, terminalStatus(st.batch.Counters))
	return nil
}

// GetBatch returns a snapshot of the batch.
func (s *BatchStore) GetBatch(_ context.Context, batchID string) (leadership.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.batches[batchID]
	if !ok {
		return leadership.Batch{}, fmt.Errorf("batch %s: %w", batchID, leadership.ErrNotFound)
	}
	out := st.batch
	out.Companies = append([]leadership.Company(nil), st.batch.Companies...)
	out.Results = make([]*leadership.Result, len(st.batch.Results))
	for i, res := range st.batch.Results {
		if res != nil {
			cp := *res
			out.Results[i] = &cp
		}
	}
	return out, nil
}

// Wait blocks until the batch reaches a terminal status or ctx ends.
func (s *BatchStore) Wait(ctx context.Context, batchID string) error {
	s.mu.RLock()
	st, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, leadership.ErrNotFound)
	}
	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BatchStore) finishLocked(st *batchState, status leadership.BatchStatus) {
	st.batch.Status = status
	finished := s.now()
	st.batch.Finished = &finished
	close(st.done)
}

func (s *BatchStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func count(c *leadership.BatchCounters, res leadership.Result) {
	c.Done++
	switch {
	case res.Outcome == leadership.OutcomeTimeout:
		c.TimedOut++
	case res.LeadershipFound:
		c.Found++
	default:
		c.Skipped++
	}
}

// terminalStatus is timed_out when any company was cut off by the budget.
func terminalStatus(c leadership.BatchCounters) leadership.BatchStatus {
	if c.TimedOut > 0 {
		return leadership.BatchStatusTimedOut
	}
	return leadership.BatchStatusCompleted
}

func isTerminal(status leadership.BatchStatus) bool {
	switch status {
	case leadership.BatchStatusCompleted, leadership.BatchStatusTimedOut:
		return true
	default:
		return false
	}
}
