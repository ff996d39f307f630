package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SkyZonDev/scrappex/internal/bootstrap"
	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/logger"
	"github.com/SkyZonDev/scrappex/internal/metrics"
	kafkaproducer "github.com/SkyZonDev/scrappex/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("worker: invalid config: ", err)
	}
	lg := logger.New("worker", logger.ParseLevel(cfg.LogLevel)).With("worker_id", cfg.WorkerID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, lg, metrics.NewRecorder(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatal("worker: init runtime: ", err)
	}
	defer rt.Close()

	consumer := kafkaproducer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.BatchTopic, cfg.Kafka.WorkerGroup)
	defer consumer.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				lg.Error("metrics server failed", "error", err)
			}
		}()
	}

	lg.Info("worker started", "topic", cfg.Kafka.BatchTopic, "brokers", cfg.Kafka.Brokers)

	for ctx.Err() == nil {
		// 1) Read one batch message
		msg, commit, err := consumer.ReadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			lg.Warn("read error", "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// 2) Run it; the registry claim makes redelivery harmless
		if err := rt.Executor.Execute(ctx, msg.BatchID); err != nil {
			lg.Error("execute failed", "batch_id", msg.BatchID, "error", err)
			// Not committed: Kafka redelivers the message.
			continue
		}

		// 3) Commit only after the batch reached a terminal status
		if err := commit(context.WithoutCancel(ctx)); err != nil {
			lg.Warn("commit error", "batch_id", msg.BatchID, "error", err)
		}
	}
	lg.Info("worker stopped")
}
