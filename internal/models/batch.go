package models

import "time"

// BatchStatus is the lifecycle state of a submitted batch.
type BatchStatus string

const (
	StatusPending   BatchStatus = "pending"
	StatusRunning   BatchStatus = "running"
	StatusCompleted BatchStatus = "completed"
	StatusError     BatchStatus = "error"
)

// Lot is one purchasable item and the instant it opens for purchase.
type Lot struct {
	ID       int64     `dynamodbav:"id" json:"id"`
	TargetAt time.Time `dynamodbav:"target_at" json:"target_at"`
}

type Batch struct {
	// Keys
	BatchID string `dynamodbav:"batch_id" json:"batch_id"`

	// Business
	Lots   []Lot        `dynamodbav:"lots" json:"lots"`
	Result *BatchResult `dynamodbav:"result,omitempty" json:"result"`

	// Processing/Status
	Status          BatchStatus `dynamodbav:"status" json:"status"`
	Error           string      `dynamodbav:"error" json:"error,omitempty"`
	CancelRequested bool        `dynamodbav:"cancel_requested" json:"cancel_requested,omitempty"`
	WorkerID        string      `dynamodbav:"worker_id" json:"worker_id,omitempty"`

	// Timestamps (epoch ms)
	CreatedAt int64 `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt int64 `dynamodbav:"updated_at" json:"updated_at"`
	StartedAt int64 `dynamodbav:"started_at" json:"started_at,omitempty"`

	// ExpiresAt is epoch seconds so DynamoDB TTL can evict the item directly.
	ExpiresAt int64 `dynamodbav:"expires_at" json:"expires_at"`
}

// Terminal reports whether the batch can no longer change status.
func (b Batch) Terminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusError
}

// EarliestTarget returns the first target instant across the batch lots.
func (b Batch) EarliestTarget() time.Time {
	var first time.Time
	for _, l := range b.Lots {
		if first.IsZero() || l.TargetAt.Before(first) {
			first = l.TargetAt
		}
	}
	return first
}
