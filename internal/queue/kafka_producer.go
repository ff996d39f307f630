package kafkaproducer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	timeout time.Duration
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
	}

	return &Producer{writer: w, timeout: 3 * time.Second}, nil
}

func (p *Producer) Close() error { return p.writer.Close() }

func (p *Producer) PublishBatch(ctx context.Context, batchID string) error {
	return p.publishJSON(ctx, batchID, BatchMessage{BatchID: batchID})
}

func (p *Producer) PublishSchedule(ctx context.Context, batchID string, startAt time.Time) error {
	return p.publishJSON(ctx, batchID, ScheduleMessage{BatchID: batchID, StartAt: startAt.UnixMilli()})
}

func (p *Producer) publishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	// Keep callers from hanging when the brokers are down.
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}
