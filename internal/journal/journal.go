package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// Entry is one JSONL line. A finished batch produces one "lot" entry per lot
// followed by a "batch" entry.
type Entry struct {
	Kind    string             `json:"kind"`
	BatchID string             `json:"batch_id"`
	At      time.Time          `json:"at"`
	Status  models.BatchStatus `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
	Won     int                `json:"won,omitempty"`
	Lot     *models.LotResult  `json:"lot,omitempty"`
}

// Journal appends batch outcomes to a JSONL file. A nil *Journal discards
// everything. It is safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// New returns a journal appending to path, or nil when path is blank.
func New(path string) *Journal {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Journal{path: path}
}

func (j *Journal) ensureOpenLocked() error {
	if j.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// RecordBatch writes the lines for a terminal batch and flushes them.
func (j *Journal) RecordBatch(b models.Batch, at time.Time) error {
	if j == nil {
		return nil
	}
	var entries []Entry
	won := 0
	if b.Result != nil {
		won = b.Result.Won()
		for i := range b.Result.Lots {
			entries = append(entries, Entry{Kind: "lot", BatchID: b.BatchID, At: at, Lot: &b.Result.Lots[i]})
		}
	}
	entries = append(entries, Entry{Kind: "batch", BatchID: b.BatchID, At: at, Status: b.Status, Error: b.Error, Won: won})

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureOpenLocked(); err != nil {
		return err
	}
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := j.w.Write(line); err != nil {
			return err
		}
		if err := j.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return j.w.Flush()
}

// Close flushes any buffered data and closes the underlying file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	if j.w != nil {
		if err := j.w.Flush(); err != nil {
			firstErr = err
		}
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.w = nil
	j.file = nil

	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
