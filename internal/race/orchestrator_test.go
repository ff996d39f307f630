package race

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyZonDev/scrappex/internal/models"
)

type recordingObserver struct {
	mu       sync.Mutex
	phases   map[int64][]Phase
	warmups  map[int64]error
	attempts int
	resolved []models.LotResult
	// lots whose warm-up was reported after their result
	lateWarmups []int64
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{phases: map[int64][]Phase{}, warmups: map[int64]error{}}
}

func (o *recordingObserver) PhaseChanged(lotID int64, _, to Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases[lotID] = append(o.phases[lotID], to)
}

func (o *recordingObserver) WarmupFinished(lotID int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warmups[lotID] = err
	for _, r := range o.resolved {
		if r.LotID == lotID {
			o.lateWarmups = append(o.lateWarmups, lotID)
		}
	}
}

func (o *recordingObserver) AttemptFinished(models.AttemptRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *recordingObserver) LotResolved(res models.LotResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved = append(o.resolved, res)
}

func soon(d time.Duration) time.Time { return time.Now().Add(d) }

func TestRunLotWins(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"success"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"error","message":"deja vendu"}`))
	}))
	defer srv.Close()

	obs := newRecordingObserver()
	orch := NewOrchestrator(fastConfig(), WithLogger(discardLogger()), WithObserver(obs))
	lot := models.Lot{ID: 42, TargetAt: soon(80 * time.Millisecond)}
	res := orch.RunLot(context.Background(), testSession(t, srv), lot)

	assert.Equal(t, models.OutcomeWon, res.Outcome)
	require.NotNil(t, res.Winner)
	assert.Equal(t, models.VerdictSuccess, res.Winner.Verdict)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 1, res.Successes)
	assert.Equal(t, 4, res.Failures)
	assert.False(t, res.Winner.DispatchedAt.Before(lot.TargetAt), "no attempt may leave before target")
	assert.GreaterOrEqual(t, res.SyncOffset, time.Duration(0))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []Phase{PhasePending, PhaseDispatched, PhaseClassifying, PhaseResolved}, obs.phases[42])
	assert.Equal(t, 5, obs.attempts)
}

func TestRunLotUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	sess := testSession(t, srv)
	srv.Close()

	res := NewOrchestrator(fastConfig(), WithLogger(discardLogger())).
		RunLot(context.Background(), sess, models.Lot{ID: 1, TargetAt: soon(20 * time.Millisecond)})

	assert.Equal(t, models.OutcomeAllFailed, res.Outcome)
	assert.Nil(t, res.Winner)
	assert.Equal(t, 5, res.Indeterminate)
	require.NotNil(t, res.Diagnostic)
	assert.Contains(t, res.Diagnostic.Error, "transport")
}

func TestRunLotUnparseableBodies(t *testing.T) {
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	res := NewOrchestrator(fastConfig(), WithLogger(discardLogger())).
		RunLot(context.Background(), testSession(t, srv), models.Lot{ID: 3, TargetAt: soon(20 * time.Millisecond)})

	assert.Equal(t, models.OutcomeAllFailed, res.Outcome)
	assert.Nil(t, res.Winner)
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, http.StatusOK, res.Diagnostic.StatusCode)
	assert.Contains(t, res.Diagnostic.Body, "maintenance")
}

func TestRunLotSessionExpired(t *testing.T) {
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	res := NewOrchestrator(fastConfig(), WithLogger(discardLogger())).
		RunLot(context.Background(), testSession(t, srv), models.Lot{ID: 3, TargetAt: soon(20 * time.Millisecond)})

	assert.Equal(t, models.OutcomeAllFailed, res.Outcome)
	require.NotNil(t, res.Diagnostic)
	assert.Contains(t, res.Diagnostic.Error, "session expired")
}

func TestRunLotSurvivesWarmupFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	mux.HandleFunc("/achat/action", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastConfig()
	cfg.WarmupPath = "/slow"
	cfg.WarmupTimeout = 10 * time.Millisecond
	obs := newRecordingObserver()
	res := NewOrchestrator(cfg, WithLogger(discardLogger()), WithObserver(obs)).
		RunLot(context.Background(), testSession(t, srv), models.Lot{ID: 8, TargetAt: soon(100 * time.Millisecond)})

	assert.Equal(t, models.OutcomeWon, res.Outcome)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Contains(t, obs.warmups, int64(8), "warm-up joined before RunLot returns")
	assert.ErrorIs(t, obs.warmups[8], ErrWarmup)
	assert.Empty(t, obs.lateWarmups)
}

func TestRunLotCancelledBeforeDispatch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs := newRecordingObserver()
	res := NewOrchestrator(fastConfig(), WithLogger(discardLogger()), WithObserver(obs)).
		RunLot(ctx, testSession(t, srv), models.Lot{ID: 5, TargetAt: soon(time.Hour)})

	assert.Equal(t, models.OutcomeCancelled, res.Outcome)
	assert.Zero(t, res.Attempts)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, hits.Load())
	assert.Equal(t, []Phase{PhasePending, PhaseResolved}, obs.phases[5])
}

func TestCoordinatorKeepsLotsIndependent(t *testing.T) {
	var mu sync.Mutex
	firstHit := map[string]time.Time{}
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		lot := r.FormValue("lot")
		mu.Lock()
		if _, ok := firstHit[lot]; !ok {
			firstHit[lot] = time.Now()
		}
		mu.Unlock()
		if lot == "2" {
			_, _ = w.Write([]byte(`{"status":"error","message":"stock epuise"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	base := time.Now()
	lots := []models.Lot{
		{ID: 3, TargetAt: base.Add(150 * time.Millisecond)},
		{ID: 1, TargetAt: base.Add(50 * time.Millisecond)},
		{ID: 2, TargetAt: base.Add(100 * time.Millisecond)},
	}
	orch := NewOrchestrator(fastConfig(), WithLogger(discardLogger()))
	res := NewCoordinator(orch).Run(context.Background(), testSession(t, srv), lots)

	require.Len(t, res.Lots, 3)
	for i, lot := range lots {
		assert.Equal(t, lot.ID, res.Lots[i].LotID, "results keep input order")
		assert.Equal(t, 5, res.Lots[i].Attempts)
		hit := firstHit[strconv.FormatInt(lot.ID, 10)]
		assert.False(t, hit.Before(lot.TargetAt), "lot %d dispatched before its target", lot.ID)
	}
	assert.Equal(t, models.OutcomeWon, res.Lots[0].Outcome)
	assert.Equal(t, models.OutcomeWon, res.Lots[1].Outcome)
	assert.Equal(t, models.OutcomeLost, res.Lots[2].Outcome)
	assert.Equal(t, 2, res.Won())
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

// panickingObserver blows up when lot 2 starts.
type panickingObserver struct{ nopObserver }

func (panickingObserver) PhaseChanged(lotID int64, _, _ Phase) {
	if lotID == 2 {
		panic("observer exploded")
	}
}

func TestCoordinatorContainsPanickingLot(t *testing.T) {
	srv := httptest.NewServer(shopHandler(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	lots := []models.Lot{
		{ID: 1, TargetAt: soon(50 * time.Millisecond)},
		{ID: 2, TargetAt: soon(50 * time.Millisecond)},
	}
	orch := NewOrchestrator(fastConfig(), WithLogger(discardLogger()), WithObserver(panickingObserver{}))
	res := NewCoordinator(orch).Run(context.Background(), testSession(t, srv), lots)

	require.Len(t, res.Lots, 2)
	assert.Equal(t, models.OutcomeWon, res.Lots[0].Outcome)
	assert.Equal(t, int64(2), res.Lots[1].LotID)
	assert.Equal(t, models.OutcomeAllFailed, res.Lots[1].Outcome)
	assert.Contains(t, res.Lots[1].Error, "observer exploded")
}
