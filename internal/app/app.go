package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"BountyScanner/internal/config"
	"BountyScanner/internal/infrastructure/export"
	"BountyScanner/internal/infrastructure/scheduler"
	"BountyScanner/internal/infrastructure/slack"
	"BountyScanner/internal/infrastructure/source"
	"BountyScanner/internal/infrastructure/storage"
	"BountyScanner/internal/ports"
	"BountyScanner/internal/usecase"
)

// Application wires configuration to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    ports.RecordStore
	github   *source.GitHubSource
	pipeline *usecase.Pipeline
}

// New opens the store and builds all adapters and the pipeline.
func New(cfg config.Config, logger zerolog.Logger) (*Application, error) {
	store, err := storage.Open(cfg.Database.Path, cfg.Database.BusyTimeout.Std())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	github := source.NewGitHubSource(cfg.GitHub, store, logger.With().Str("component", "source.github").Logger())
	sources := []ports.SourceAdapter{github}
	if len(cfg.Algora.Orgs) > 0 {
		sources = append(sources, source.NewAlgoraSource(cfg.Algora.Orgs, logger.With().Str("component", "source.algora").Logger()))
	}

	var exporter ports.Exporter
	if cfg.Export.Enabled {
		exporter = export.NewCSVExporter(cfg.Export.Dir)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:  sources,
		Store:    store,
		Notifier: slack.NewNotifier(cfg.Slack),
		Exporter: exporter,
		Logger:   logger.With().Str("component", "pipeline").Logger(),
	})

	return &Application{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		github:   github,
		pipeline: pipeline,
	}, nil
}

// Run executes one cycle for the given mode, or blocks scheduling cycles
// until ctx is cancelled in "run" mode.
func (a *Application) Run(ctx context.Context, mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "collect":
		_, err := a.pipeline.Collect(ctx, a.collectWindow())
		return err

	case "digest":
		return a.pipeline.Digest(ctx, time.Now(), a.digestOptions(0))

	case "bootstrap":
		days := a.cfg.BootstrapDays
		if days < 1 {
			days = 1
		}
		window := time.Duration(days) * 24 * time.Hour
		a.logger.Info().Int("days", days).Msg("bootstrap: collecting")
		if _, err := a.pipeline.Collect(ctx, window); err != nil {
			return err
		}
		a.logger.Info().Msg("bootstrap: sending digest")
		return a.pipeline.Digest(ctx, time.Now(), a.digestOptions(window))

	case "langs":
		languages, err := a.github.Languages(ctx)
		if err != nil {
			return fmt.Errorf("resolve languages: %w", err)
		}
		a.logger.Info().Strs("languages", languages).Msg("profile languages")
		return nil

	case "test-digest":
		if err := a.pipeline.InjectDummy(ctx, time.Now()); err != nil {
			return err
		}
		return a.pipeline.Digest(ctx, time.Now(), a.digestOptions(time.Hour))

	case "run":
		return a.runScheduled(ctx)

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// runScheduled starts the cron driver with the collect and digest cycles
// and blocks until the context is cancelled.
func (a *Application) runScheduled(ctx context.Context) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:        driver,
		Pipeline:      a.pipeline,
		CollectSpec:   a.cfg.Scheduler.CollectCron,
		DigestSpec:    a.cfg.Scheduler.DigestCron,
		CollectWindow: a.collectWindow(),
		DigestOpts:    a.digestOptions(0),
		Logger:        a.logger.With().Str("component", "scheduler").Logger(),
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info().
		Str("collect", a.cfg.Scheduler.CollectCron).
		Str("digest", a.cfg.Scheduler.DigestCron).
		Msg("scheduler running")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases the record store.
func (a *Application) Close() error {
	return a.store.Close()
}

func (a *Application) collectWindow() time.Duration {
	return time.Duration(a.cfg.GitHub.WindowMinutes) * time.Minute
}

func (a *Application) digestOptions(lookbackOverride time.Duration) usecase.DigestOptions {
	opts := usecase.DigestOptions{
		Lookback:         time.Duration(a.cfg.Digest.LookbackMinutes) * time.Minute,
		MinCount:         a.cfg.Digest.MinCount,
		MaxItems:         a.cfg.Digest.MaxItems,
		CharBudget:       a.cfg.Slack.MaxChars,
		PostLongAsThread: a.cfg.Slack.PostLongAsThread,
		UploadExport:     a.cfg.Export.Enabled && a.cfg.Export.UploadToSlack,
	}
	if lookbackOverride > 0 {
		opts.Lookback = lookbackOverride
	}
	return opts
}
