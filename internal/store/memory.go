package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SkyZonDev/scrappex/internal/models"
)

const defaultSweepInterval = time.Minute

// MemoryStore keeps batches in process. A background loop evicts expired
// records; reads also hide them before the sweep runs.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]models.Batch
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	return newMemoryStore(sweepEvery, time.Now)
}

func newMemoryStore(sweepEvery time.Duration, now func() time.Time) *MemoryStore {
	if sweepEvery <= 0 {
		sweepEvery = defaultSweepInterval
	}
	s := &MemoryStore{
		batches: make(map[string]models.Batch),
		now:     now,
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup(s.now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, b := range s.batches {
		if expired(b, now.UnixMilli()) {
			delete(s.batches, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) PutBatch(_ context.Context, b models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.BatchID] = cloneBatch(b)
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, batchID string) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok || expired(b, s.now().UnixMilli()) {
		return nil, ErrNotFound
	}
	out := cloneBatch(b)
	return &out, nil
}

func (s *MemoryStore) ListBatches(_ context.Context, limit int) ([]models.Batch, error) {
	s.mu.RLock()
	nowMs := s.now().UnixMilli()
	out := make([]models.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if !expired(b, nowMs) {
			out = append(out, cloneBatch(b))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, batchID, workerID string, nowMs int64) (bool, error) {
	claimed := false
	err := s.update(batchID, func(b *models.Batch) error {
		if b.Status != models.StatusPending {
			return nil
		}
		b.Status = models.StatusRunning
		b.WorkerID = workerID
		b.StartedAt = nowMs
		b.UpdatedAt = nowMs
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *MemoryStore) Complete(_ context.Context, batchID string, result models.BatchResult, nowMs int64) error {
	return s.update(batchID, func(b *models.Batch) error {
		if b.Terminal() {
			return ErrConflict
		}
		r := result
		r.Lots = append([]models.LotResult(nil), result.Lots...)
		b.Result = &r
		b.Status = models.StatusCompleted
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *MemoryStore) Fail(_ context.Context, batchID, msg string, nowMs int64) error {
	return s.update(batchID, func(b *models.Batch) error {
		if b.Terminal() {
			return ErrConflict
		}
		b.Status = models.StatusError
		b.Error = msg
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *MemoryStore) RequestCancel(_ context.Context, batchID string, nowMs int64) error {
	return s.update(batchID, func(b *models.Batch) error {
		if !cancellable(*b) {
			return ErrConflict
		}
		b.CancelRequested = true
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *MemoryStore) Delete(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return ErrNotFound
	}
	delete(s.batches, batchID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) update(batchID string, fn func(*models.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok || expired(b, s.now().UnixMilli()) {
		return ErrNotFound
	}
	if err := fn(&b); err != nil {
		return err
	}
	s.batches[batchID] = b
	return nil
}

// cloneBatch copies the slices a caller could otherwise mutate in place.
func cloneBatch(b models.Batch) models.Batch {
	b.Lots = append([]models.Lot(nil), b.Lots...)
	if b.Result != nil {
		r := *b.Result
		r.Lots = append([]models.LotResult(nil), b.Result.Lots...)
		b.Result = &r
	}
	return b
}

func sortNewestFirst(bs []models.Batch) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].CreatedAt != bs[j].CreatedAt {
			return bs[i].CreatedAt > bs[j].CreatedAt
		}
		return bs[i].BatchID < bs[j].BatchID
	})
}
