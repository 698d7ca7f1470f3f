package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/geofetch/geofetch/pkg/acquire"
	"github.com/geofetch/geofetch/pkg/cache"
	"github.com/geofetch/geofetch/pkg/consolidate"
	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/scheduler"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var watchMergePolicy string

//nolint:gochecknoglobals // Cobra commands are typically global
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep datasets up to date on a schedule",
	Long: `Watch runs the scheduler jobs from the config file. Each due job reloads
its dataset configuration and acquires the lookback window ending today.
Jobs with refetch set request stored dates in the window again and, with
the default merge policy, replace them with the newer values.
With Redis configured, last runs survive restarts and only one watcher
sharing the Redis prefix runs jobs at a time.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchMergePolicy, "merge-policy", string(consolidate.PreferIncoming), "which value wins on overlapping timestamps")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	if err := cfg.Scheduler.Validate(); err != nil {
		return err
	}

	policy, err := consolidate.ParseMergePolicy(watchMergePolicy)
	if err != nil {
		return err
	}

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}

	var (
		tracker = scheduler.NewMemoryTracker()
		elector scheduler.LeaderElector
	)

	if redisClient != nil {
		defer redisClient.Close()

		tracker = scheduler.NewRedisTracker(logger, redisClient, cfg.Redis.Prefix)
		elector = scheduler.NewLeaderElector(logger, redisClient, cfg.Redis.Prefix,
			cfg.Scheduler.LeaseTTL, cfg.Scheduler.RenewInterval)
	}

	stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	runner := newJobRunner(logger, cfg, redisClient, policy)

	svc, err := scheduler.NewService(logger, &cfg.Scheduler, tracker, elector, runner.run)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("jobs", len(cfg.Scheduler.Jobs)).Info("Watching datasets")

	if err := svc.Start(ctx); err != nil {
		return err
	}

	return svc.Stop()
}

// jobRunner performs one scheduled acquisition
type jobRunner struct {
	log    logrus.FieldLogger
	cfg    *CLIConfig
	cache  cache.Cache
	policy consolidate.MergePolicy
}

func newJobRunner(log logrus.FieldLogger, cfg *CLIConfig, redisClient *r.Client, policy consolidate.MergePolicy) *jobRunner {
	return &jobRunner{
		log:    log.WithField("component", "watch"),
		cfg:    cfg,
		cache:  searchCache(cfg, redisClient),
		policy: policy,
	}
}

func (j *jobRunner) run(ctx context.Context, job scheduler.JobConfig, window scheduler.Window) error {
	log := j.log.WithField("job_id", job.Name)

	kind, err := acquire.ParseKind(job.Source)
	if err != nil {
		return err
	}

	catalog, err := dataset.Open(log, job.Dataset)
	if err != nil {
		return fmt.Errorf("failed to load dataset for job %s: %w", job.Name, err)
	}

	fetcher, err := acquire.NewFetcher(log, kind, &j.cfg.Sources, catalog, job.Workers, acquire.Deps{Cache: j.cache})
	if err != nil {
		return err
	}
	defer fetcher.Close()

	coarsest, finest := kind.Limits()

	report, err := acquire.Run(ctx, log, catalog, fetcher, acquire.Options{
		Download: download.Config{
			Workers:            job.Workers,
			RequestFrequency:   coarsest,
			SourceMinFrequency: coarsest,
			SourceMaxFrequency: finest,
			Refetch:            job.Refetch,
			Ranges:             []download.DateRange{{Start: window.Start, End: window.End}},
		},
		Consolidate: consolidate.Options{Policy: j.policy},
	})
	if err != nil {
		return err
	}

	if len(report.Missing) > 0 {
		log.WithField("missing", len(report.Missing)).Warn("Some dates are not yet available")
	}

	return nil
}
