package kafkaproducer

import "errors"

// BatchMessage asks a worker to execute a batch now.
type BatchMessage struct {
	BatchID string `json:"batch_id"`
}

func (m BatchMessage) validate() error {
	if m.BatchID == "" {
		return errors.New("invalid message: missing batch_id")
	}
	return nil
}

// ScheduleMessage holds a batch back until StartAt, leaving enough lead
// before its earliest lot for login and warm-up.
type ScheduleMessage struct {
	BatchID string `json:"batch_id"`
	StartAt int64  `json:"start_at"` // epoch ms
}

func (m ScheduleMessage) validate() error {
	if m.BatchID == "" {
		return errors.New("invalid message: missing batch_id")
	}
	return nil
}
