package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyZonDev/scrappex/internal/models"
)

func TestRecordBatchAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "batches.jsonl")
	j := New(path)
	require.NotNil(t, j)

	at := time.Date(2026, 5, 4, 10, 0, 1, 0, time.UTC)
	b := models.Batch{
		BatchID: "b-1",
		Status:  models.StatusCompleted,
		Result: &models.BatchResult{Lots: []models.LotResult{
			{LotID: 1, Outcome: models.OutcomeWon},
			{LotID: 2, Outcome: models.OutcomeLost},
		}},
	}
	require.NoError(t, j.RecordBatch(b, at))
	require.NoError(t, j.RecordBatch(models.Batch{BatchID: "b-2", Status: models.StatusError, Error: "login refused"}, at))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 4)
	assert.Equal(t, "lot", entries[0].Kind)
	assert.Equal(t, int64(1), entries[0].Lot.LotID)
	assert.Equal(t, "batch", entries[2].Kind)
	assert.Equal(t, 1, entries[2].Won)
	assert.Equal(t, "login refused", entries[3].Error)
}

func TestNilJournalDiscards(t *testing.T) {
	j := New("  ")
	assert.Nil(t, j)
	assert.NoError(t, j.RecordBatch(models.Batch{BatchID: "x"}, time.Now()))
	assert.NoError(t, j.Close())
}
