// Package bootstrap wires the components shared by the api, worker and race
// binaries from a loaded Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/SkyZonDev/scrappex/internal/auth"
	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/email"
	"github.com/SkyZonDev/scrappex/internal/journal"
	"github.com/SkyZonDev/scrappex/internal/race"
	"github.com/SkyZonDev/scrappex/internal/runner"
	"github.com/SkyZonDev/scrappex/internal/store"
)

// Runtime holds what an executing process needs. Close releases it.
type Runtime struct {
	Store    store.Store
	Executor *runner.Executor
	Journal  *journal.Journal
}

// New opens the store and builds an Executor that logs in with the
// configured buyer account before each batch. obs may be nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, obs race.Observer) (*Runtime, error) {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := []race.Option{race.WithLogger(logger)}
	if obs != nil {
		opts = append(opts, race.WithObserver(obs))
	}
	coord := race.NewCoordinator(race.NewOrchestrator(cfg.Race, opts...))

	authn := auth.NewAuthenticator(cfg.Pool, cfg.Shop.LoginPath, logger)
	acquire := func(ctx context.Context) (*race.Session, error) {
		return authn.Acquire(ctx, cfg.Shop.BaseURL, cfg.Shop.Credentials)
	}

	j := journal.New(cfg.JournalPath)
	execOpts := []runner.ExecutorOption{
		runner.WithWorkerID(cfg.WorkerID),
		runner.WithExecutorLogger(logger),
		runner.WithJournal(j),
	}
	if cfg.Notify.Enabled() {
		n, err := newNotifier(ctx, cfg)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init notifier: %w", err)
		}
		execOpts = append(execOpts, runner.WithNotifier(n))
	}

	return &Runtime{
		Store:    st,
		Executor: runner.NewExecutor(st, acquire, coord, execOpts...),
		Journal:  j,
	}, nil
}

func newNotifier(ctx context.Context, cfg config.Config) (*email.Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws cfg: %w", err)
	}
	sender, err := email.NewSESSender(awsCfg, cfg.Notify.FromEmail)
	if err != nil {
		return nil, err
	}
	return email.NewNotifier(sender, cfg.Notify.ToEmail), nil
}

func (r *Runtime) Close() error {
	jerr := r.Journal.Close()
	if err := r.Store.Close(); err != nil {
		return err
	}
	return jerr
}
