package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/logger"
	kafkaproducer "github.com/SkyZonDev/scrappex/internal/queue"
)

// The scheduler holds each scheduled batch until its start time, then hands
// it to the workers. It never touches the registry or the shop, so it loads
// the environment without requiring the shop settings.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	lg := logger.New("scheduler", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := kafkaproducer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ScheduledTopic, cfg.Kafka.SchedulerGroup)
	defer consumer.Close()

	producer, err := kafkaproducer.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BatchTopic)
	if err != nil {
		log.Fatal("scheduler: init producer: ", err)
	}
	defer producer.Close()

	lg.Info("scheduler started", "from", cfg.Kafka.ScheduledTopic, "to", cfg.Kafka.BatchTopic)

	for ctx.Err() == nil {
		msg, commit, err := consumer.ReadSchedule(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			lg.Warn("read error", "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if wait := time.Until(time.UnixMilli(msg.StartAt)); wait > 0 {
			lg.Info("holding batch", "batch_id", msg.BatchID, "wait", wait)
			select {
			case <-ctx.Done():
				// Uncommitted: redelivered after restart.
				continue
			case <-time.After(wait):
			}
		}

		if err := producer.PublishBatch(ctx, msg.BatchID); err != nil {
			lg.Error("publish batch failed", "batch_id", msg.BatchID, "error", err)
			continue
		}
		if err := commit(ctx); err != nil {
			lg.Warn("commit error", "batch_id", msg.BatchID, "error", err)
		}
	}
	lg.Info("scheduler stopped")
}
