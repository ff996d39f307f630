package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SkyZonDev/scrappex/internal/bootstrap"
	"github.com/SkyZonDev/scrappex/internal/config"
	httpapi "github.com/SkyZonDev/scrappex/internal/http"
	"github.com/SkyZonDev/scrappex/internal/logger"
	"github.com/SkyZonDev/scrappex/internal/metrics"
	kafkaproducer "github.com/SkyZonDev/scrappex/internal/queue"
	"github.com/SkyZonDev/scrappex/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("api: invalid config: ", err)
	}
	lg := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) Registry, executor and metrics
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	rt, err := bootstrap.New(ctx, cfg, lg, recorder)
	if err != nil {
		log.Fatal("api: init runtime: ", err)
	}
	defer rt.Close()

	// 2) Where accepted batches go: goroutines here, or the scheduler topic
	var launcher runner.Launcher
	var inproc *runner.InProcess
	switch cfg.Launcher {
	case "queue":
		prod, err := kafkaproducer.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ScheduledTopic)
		if err != nil {
			log.Fatal("api: init producer: ", err)
		}
		defer prod.Close()
		launcher = runner.NewQueue(prod, cfg.Kafka.ScheduleLead)
	default:
		inproc = runner.NewInProcess(ctx, rt.Executor, cfg.Kafka.ScheduleLead, lg)
		launcher = inproc
	}

	app := &httpapi.App{
		Batches: runner.NewService(rt.Store, launcher, cfg.Store.TTL, lg),
		Metrics: recorder,
		Logger:  lg,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Handle("/metrics", metrics.Handler())
	httpapi.RegisterRoutes(r, app)

	srv := &http.Server{Addr: cfg.APIAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		lg.Info("api listening", "addr", cfg.APIAddr, "launcher", cfg.Launcher, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("api shutdown", "error", err)
	}
	if inproc != nil {
		// Batches still waiting for their target were cancelled with ctx.
		inproc.Wait()
	}
}
