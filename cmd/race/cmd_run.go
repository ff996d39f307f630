package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SkyZonDev/scrappex/internal/bootstrap"
	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/logger"
	"github.com/SkyZonDev/scrappex/internal/models"
	"github.com/SkyZonDev/scrappex/internal/runner"
)

type runOptions struct {
	lots     []string
	lotsFile string
	output   string
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch in this process and print its result",
		Long: `Run logs in, waits for each lot's target time, fires the purchase burst and
prints the batch result. Ctrl-C cancels lots that have not fired yet.

Exit status is 1 when no lot was won.`,
		Example: `  race run --lot 12=2026-10-18T10:00:00 --lot 13=2026-10-18T10:00:00.500
  race run --lots lots.yaml -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.lots, "lot", nil, "Lot as ID=TIME; repeatable")
	cmd.Flags().StringVar(&opts.lotsFile, "lots", "", "YAML file listing lots")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	return cmd
}

func runE(cmd *cobra.Command, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	// A single run keeps its batch in memory.
	cfg.Store.Backend = "memory"

	lots, err := collectLots(opts, time.Local)
	if err != nil {
		return err
	}

	lg := logger.NewWithWriter(os.Stderr, "race", logger.ParseLevel(cfg.LogLevel))
	ctx := context.Background()
	rt, err := bootstrap.New(ctx, cfg, lg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	launcher := runner.NewInProcess(ctx, rt.Executor, cfg.Kafka.ScheduleLead, lg)
	svc := runner.NewService(rt.Store, launcher, cfg.Store.TTL, lg)

	batchID, err := svc.Submit(ctx, lots)
	if err != nil {
		return err
	}
	lg.Info("batch scheduled", "batch_id", batchID, "lots", len(lots))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		launcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-sigCtx.Done():
		// Restore default signal handling so a second Ctrl-C exits at once.
		stop()
		lg.Warn("interrupted, cancelling batch", "batch_id", batchID)
		if err := svc.Cancel(ctx, batchID); err != nil {
			lg.Warn("cancel failed", "error", err)
		}
		<-done
	}

	b, err := svc.Status(ctx, batchID)
	if err != nil {
		return err
	}
	if err := printBatch(cmd, b, opts.output); err != nil {
		return err
	}
	if b.Status == models.StatusError {
		return errors.New(b.Error)
	}
	if b.Result == nil || b.Result.Won() == 0 {
		return errNoneWon
	}
	return nil
}

func collectLots(opts runOptions, loc *time.Location) ([]models.Lot, error) {
	var lots []models.Lot
	if opts.lotsFile != "" {
		fromFile, err := loadLotsFile(opts.lotsFile, loc)
		if err != nil {
			return nil, err
		}
		lots = append(lots, fromFile...)
	}
	for _, s := range opts.lots {
		l, err := parseLotFlag(s, loc)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	if len(lots) == 0 {
		return nil, errors.New("no lots given: use --lot or --lots")
	}
	return lots, nil
}

func printBatch(cmd *cobra.Command, b *models.Batch, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(out, "batch %s: %s\n", b.BatchID, b.Status)
	if b.Result == nil {
		if b.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", b.Error)
		}
		return nil
	}
	for _, l := range b.Result.Lots {
		line := fmt.Sprintf("  lot %d @ %s: %s", l.LotID, l.TargetAt.Format("15:04:05.000"), l.Outcome)
		if l.Winner != nil {
			line += fmt.Sprintf(" (attempt #%d, %s)", l.Winner.Seq, l.Winner.Elapsed.Round(time.Millisecond))
		} else if l.Diagnostic != nil && l.Diagnostic.Reason != "" {
			line += fmt.Sprintf(" (%s)", l.Diagnostic.Reason)
		}
		fmt.Fprintf(out, "%s [%d ok / %d rejected / %d unknown, offset %s]\n",
			line, l.Successes, l.Failures, l.Indeterminate, l.SyncOffset)
	}
	fmt.Fprintf(out, "won %d/%d\n", b.Result.Won(), len(b.Result.Lots))
	return nil
}
