package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetTime(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	got, err := ParseTargetTime("2026-05-04T10:00:00.250+02:00", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 5, 4, 8, 0, 0, 250e6, time.UTC)))

	got, err = ParseTargetTime("2026-05-04T10:00:00.5", paris)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 5, 4, 8, 0, 0, 500e6, time.UTC)))

	got, err = ParseTargetTime("2026-05-04 10:00:00", time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)))

	_, err = ParseTargetTime("tomorrow at ten", time.UTC)
	assert.Error(t, err)
}

func TestBatchHelpers(t *testing.T) {
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	b := Batch{Lots: []Lot{{ID: 1, TargetAt: base.Add(time.Minute)}, {ID: 2, TargetAt: base}}}
	assert.Equal(t, base, b.EarliestTarget())
	assert.False(t, b.Terminal())
	b.Status = StatusError
	assert.True(t, b.Terminal())
}
