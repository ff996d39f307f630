package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/store"
)

type fakeLauncher struct {
	mu       sync.Mutex
	launched []models.Batch
	err      error
}

func (l *fakeLauncher) Launch(_ context.Context, b models.Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, b)
	return l.err
}

type fakePublisher struct {
	batchID string
	startAt time.Time
}

func (p *fakePublisher) PublishSchedule(_ context.Context, batchID string, startAt time.Time) error {
	p.batchID, p.startAt = batchID, startAt
	return nil
}

func TestSubmitValidates(t *testing.T) {
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()
	svc := NewService(st, &fakeLauncher{}, time.Hour, discardLogger())
	at := time.Now().Add(time.Minute)

	cases := map[string][]models.Lot{
		"no lots":      nil,
		"zero id":      {{ID: 0, TargetAt: at}},
		"negative id":  {{ID: -3, TargetAt: at}},
		"no target":    {{ID: 1}},
		"duplicate id": {{ID: 1, TargetAt: at}, {ID: 1, TargetAt: at.Add(time.Second)}},
	}
	for name, lots := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), lots)
			assert.ErrorIs(t, err, ErrInvalidBatch)
		})
	}
}

func TestSubmitStoresPendingBatchAndLaunches(t *testing.T) {
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()
	launcher := &fakeLauncher{}
	svc := NewService(st, launcher, 2*time.Hour, discardLogger())

	now := time.Now().Truncate(time.Second)
	svc.now = func() time.Time { return now }
	lots := []models.Lot{
		{ID: 3, TargetAt: now.Add(10 * time.Minute)},
		{ID: 1, TargetAt: now.Add(5 * time.Minute)},
	}

	id, err := svc.Submit(context.Background(), lots)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	b, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, lots, b.Lots)
	assert.Equal(t, now.Add(10*time.Minute).Add(2*time.Hour).Unix(), b.ExpiresAt)

	require.Len(t, launcher.launched, 1)
	assert.Equal(t, id, launcher.launched[0].BatchID)
}

func TestSubmitMarksBatchWhenLaunchFails(t *testing.T) {
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()
	launcher := &fakeLauncher{err: errors.New("kafka: leader not available")}
	svc := NewService(st, launcher, time.Hour, discardLogger())

	_, err := svc.Submit(context.Background(), []models.Lot{{ID: 1, TargetAt: time.Now().Add(time.Minute)}})
	require.Error(t, err)

	list, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusError, list[0].Status)
	assert.Contains(t, list[0].Error, "leader not available")
}

func TestCancelAndEvict(t *testing.T) {
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()
	svc := NewService(st, &fakeLauncher{}, time.Hour, discardLogger())

	id, err := svc.Submit(context.Background(), []models.Lot{{ID: 1, TargetAt: time.Now().Add(time.Minute)}})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), id))
	b, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, b.CancelRequested)

	require.NoError(t, svc.Evict(context.Background(), id))
	_, err = svc.Status(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(context.Background(), id), store.ErrNotFound)
}

func TestQueueLauncherSchedulesAheadOfEarliestLot(t *testing.T) {
	pub := &fakePublisher{}
	target := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	b := models.Batch{BatchID: "b1", Lots: []models.Lot{
		{ID: 1, TargetAt: target.Add(time.Hour)},
		{ID: 2, TargetAt: target},
	}}

	require.NoError(t, NewQueue(pub, time.Minute).Launch(context.Background(), b))
	assert.Equal(t, "b1", pub.batchID)
	assert.Equal(t, target.Add(-time.Minute), pub.startAt)
}

func TestInProcessRunsSubmittedBatch(t *testing.T) {
	sh := newShop(t)
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := NewExecutor(st, sh.acquire, testCoordinator(), WithExecutorLogger(discardLogger()))
	launcher := NewInProcess(ctx, exec, time.Minute, discardLogger())
	svc := NewService(st, launcher, time.Hour, discardLogger())

	id, err := svc.Submit(context.Background(), []models.Lot{{ID: 7, TargetAt: time.Now().Add(30 * time.Millisecond)}})
	require.NoError(t, err)
	launcher.Wait()

	b, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.Equal(t, models.OutcomeWon, b.Result.Lots[0].Outcome)
}

func waitReturns(t *testing.T, l *InProcess, within time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatalf("launcher still waiting after %s", within)
	}
}

func TestInProcessCancelBeforeStart(t *testing.T) {
	sh := newShop(t)
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()

	exec := NewExecutor(st, sh.acquire, testCoordinator(),
		WithCancelPoll(10*time.Millisecond), WithExecutorLogger(discardLogger()))
	launcher := NewInProcess(context.Background(), exec, time.Minute, discardLogger())
	svc := NewService(st, launcher, time.Hour, discardLogger())

	id, err := svc.Submit(context.Background(), []models.Lot{{ID: 7, TargetAt: time.Now().Add(2 * time.Hour)}})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), id))
	waitReturns(t, launcher, 2*time.Second)

	b, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
	require.NotNil(t, b.Result)
	assert.Equal(t, models.OutcomeCancelled, b.Result.Lots[0].Outcome)
	assert.Zero(t, sh.hits.Load())
}

func TestInProcessShutdownBeforeStartLeavesPending(t *testing.T) {
	sh := newShop(t)
	st := store.NewMemoryStore(time.Hour)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(st, sh.acquire, testCoordinator(),
		WithCancelPoll(10*time.Millisecond), WithExecutorLogger(discardLogger()))
	launcher := NewInProcess(ctx, exec, time.Minute, discardLogger())
	svc := NewService(st, launcher, time.Hour, discardLogger())

	id, err := svc.Submit(context.Background(), []models.Lot{{ID: 7, TargetAt: time.Now().Add(2 * time.Hour)}})
	require.NoError(t, err)
	cancel()
	waitReturns(t, launcher, 2*time.Second)

	b, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Empty(t, b.Error)
}
