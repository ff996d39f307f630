package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyZonDev/scrappex/internal/models"
)

var raceStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func record(seq int, verdict models.Verdict, completedMs, elapsedMs int) models.AttemptRecord {
	completed := raceStart.Add(time.Duration(completedMs) * time.Millisecond)
	elapsed := time.Duration(elapsedMs) * time.Millisecond
	return models.AttemptRecord{
		LotID:        7,
		Seq:          seq,
		DispatchedAt: completed.Add(-elapsed),
		CompletedAt:  completed,
		Elapsed:      elapsed,
		Verdict:      verdict,
	}
}

func TestResolveAllTransportErrors(t *testing.T) {
	var records []models.AttemptRecord
	for i := 1; i <= 5; i++ {
		records = append(records, record(i, models.VerdictIndeterminate, 10000+i, 10000))
	}

	res := Resolve(models.Lot{ID: 7, TargetAt: raceStart}, records, EarliestCompletion)
	assert.Equal(t, models.OutcomeAllFailed, res.Outcome)
	assert.Nil(t, res.Winner)
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, 1, res.Diagnostic.Seq)
	assert.Equal(t, 5, res.Indeterminate)
	assert.Equal(t, ErrLotExhausted.Error(), res.Error)
}

func TestResolvePrefersEarliestConfirmedSuccess(t *testing.T) {
	records := []models.AttemptRecord{
		record(1, models.VerdictFailure, 60, 60),
		record(2, models.VerdictIndeterminate, 50, 50),
		record(3, models.VerdictSuccess, 102, 40),
		record(4, models.VerdictFailure, 70, 70),
		record(5, models.VerdictSuccess, 98, 90),
	}

	res := Resolve(models.Lot{ID: 7, TargetAt: raceStart}, records, EarliestCompletion)
	assert.Equal(t, models.OutcomeWon, res.Outcome)
	require.NotNil(t, res.Winner)
	assert.Equal(t, 5, res.Winner.Seq)
	assert.Equal(t, models.VerdictSuccess, res.Winner.Verdict)
	assert.Equal(t, 90*time.Millisecond, res.Elapsed)
	assert.Empty(t, res.Error)
}

func TestResolveShortestDurationPolicy(t *testing.T) {
	records := []models.AttemptRecord{
		record(3, models.VerdictSuccess, 102, 40),
		record(5, models.VerdictSuccess, 98, 90),
	}
	res := Resolve(models.Lot{ID: 7}, records, ShortestDuration)
	require.NotNil(t, res.Winner)
	assert.Equal(t, 3, res.Winner.Seq)
}

func TestResolveIsDeterministic(t *testing.T) {
	records := []models.AttemptRecord{
		record(4, models.VerdictSuccess, 100, 30),
		record(2, models.VerdictSuccess, 100, 30),
		record(1, models.VerdictFailure, 90, 20),
		record(3, models.VerdictSuccess, 100, 35),
	}
	for i := 0; i < 50; i++ {
		res := Resolve(models.Lot{ID: 7}, records, EarliestCompletion)
		require.NotNil(t, res.Winner)
		assert.Equal(t, 2, res.Winner.Seq, "equal completion falls back to sequence number")
	}
}

func TestResolveLostWhenRejected(t *testing.T) {
	records := []models.AttemptRecord{
		record(1, models.VerdictIndeterminate, 30, 30),
		record(2, models.VerdictFailure, 45, 45),
	}
	res := Resolve(models.Lot{ID: 7}, records, EarliestCompletion)
	assert.Equal(t, models.OutcomeLost, res.Outcome)
	assert.Nil(t, res.Winner)
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, 1, res.Diagnostic.Seq)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 1, res.Indeterminate)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, EarliestCompletion, p)

	p, err = ParsePolicy(" Shortest-Duration ")
	require.NoError(t, err)
	assert.Equal(t, ShortestDuration, p)

	_, err = ParsePolicy("fastest")
	assert.Error(t, err)
}

func TestLotTrackerTransitions(t *testing.T) {
	tr := newLotTracker(1, nopObserver{})
	require.NoError(t, tr.advance(PhaseDispatched))
	assert.Error(t, tr.advance(PhaseResolved), "classification cannot be skipped")
	require.NoError(t, tr.advance(PhaseClassifying))
	require.NoError(t, tr.advance(PhaseResolved))
	assert.Error(t, tr.advance(PhaseDispatched), "resolved is terminal")

	cancelled := newLotTracker(2, nopObserver{})
	require.NoError(t, cancelled.advance(PhaseResolved))
}
