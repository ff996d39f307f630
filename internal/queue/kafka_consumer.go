package kafkaproducer

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

type Consumer struct {
	reader messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &Consumer{reader: r}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// CommitFunc acknowledges the message it was returned with.
type CommitFunc func(context.Context) error

func (c *Consumer) ReadBatch(ctx context.Context) (BatchMessage, CommitFunc, error) {
	return read(ctx, c.reader, BatchMessage.validate)
}

func (c *Consumer) ReadSchedule(ctx context.Context) (ScheduleMessage, CommitFunc, error) {
	return read(ctx, c.reader, ScheduleMessage.validate)
}

func read[T any](ctx context.Context, r messageReader, validate func(T) error) (T, CommitFunc, error) {
	var zero T
	m, err := r.FetchMessage(ctx)
	if err != nil {
		return zero, nil, err
	}

	var v T
	err = json.Unmarshal(m.Value, &v)
	if err == nil {
		err = validate(v)
	}
	if err != nil {
		// Commit bad messages so the group does not stall on them.
		_ = r.CommitMessages(ctx, m)
		return zero, nil, err
	}

	commit := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return r.CommitMessages(cctx, m)
	}
	return v, commit, nil
}
