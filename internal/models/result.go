package models

import "time"

// Verdict is the tri-state classification of one purchase attempt.
type Verdict string

const (
	VerdictSuccess       Verdict = "success"
	VerdictFailure       Verdict = "failure"
	VerdictIndeterminate Verdict = "indeterminate"
)

// Outcome is the resolved state of one lot.
type Outcome string

const (
	OutcomeWon       Outcome = "won"
	OutcomeLost      Outcome = "lost"
	OutcomeAllFailed Outcome = "all-attempts-failed"
	// OutcomeCancelled marks a lot whose burst was never fired because the
	// batch was cancelled first.
	OutcomeCancelled Outcome = "cancelled"
)

// AttemptRecord describes a single purchase request of a burst.
type AttemptRecord struct {
	LotID        int64         `dynamodbav:"lot_id" json:"lot_id"`
	Seq          int           `dynamodbav:"seq" json:"seq"`
	DispatchedAt time.Time     `dynamodbav:"dispatched_at" json:"dispatched_at"`
	CompletedAt  time.Time     `dynamodbav:"completed_at" json:"completed_at"`
	Elapsed      time.Duration `dynamodbav:"elapsed_ns" json:"elapsed_ns"`
	StatusCode   int           `dynamodbav:"status_code" json:"status_code,omitempty"`
	ConnReused   bool          `dynamodbav:"conn_reused" json:"conn_reused"`

	// Body is the response body, truncated for storage.
	Body    string  `dynamodbav:"body" json:"body,omitempty"`
	Verdict Verdict `dynamodbav:"verdict" json:"verdict"`
	Reason  string  `dynamodbav:"reason" json:"reason,omitempty"`
	Error   string  `dynamodbav:"error" json:"error,omitempty"`
}

// ElapsedMs returns the attempt duration in fractional milliseconds.
func (r AttemptRecord) ElapsedMs() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

type LotResult struct {
	LotID    int64     `dynamodbav:"lot_id" json:"lot_id"`
	TargetAt time.Time `dynamodbav:"target_at" json:"target_at"`
	Outcome  Outcome   `dynamodbav:"outcome" json:"outcome"`

	// Winner is set only when Outcome is won. Diagnostic keeps the best
	// non-winning record otherwise.
	Winner     *AttemptRecord `dynamodbav:"winner,omitempty" json:"winner"`
	Diagnostic *AttemptRecord `dynamodbav:"diagnostic,omitempty" json:"diagnostic,omitempty"`

	Elapsed    time.Duration `dynamodbav:"elapsed_ns" json:"elapsed_ns"`
	SyncOffset time.Duration `dynamodbav:"sync_offset_ns" json:"sync_offset_ns"`

	Attempts      int `dynamodbav:"attempts" json:"attempts"`
	Successes     int `dynamodbav:"successes" json:"successes"`
	Failures      int `dynamodbav:"failures" json:"failures"`
	Indeterminate int `dynamodbav:"indeterminate" json:"indeterminate"`

	Error string `dynamodbav:"error" json:"error,omitempty"`
}

// BatchResult holds one LotResult per submitted lot, in submission order.
type BatchResult struct {
	Lots       []LotResult `dynamodbav:"lots" json:"lots"`
	StartedAt  time.Time   `dynamodbav:"started_at" json:"started_at"`
	FinishedAt time.Time   `dynamodbav:"finished_at" json:"finished_at"`
}

// Won counts lots that resolved as won.
func (r BatchResult) Won() int {
	n := 0
	for _, l := range r.Lots {
		if l.Outcome == OutcomeWon {
			n++
		}
	}
	return n
}
