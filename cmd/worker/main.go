package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/periodical/internal/activity"
	"github.com/edvin/periodical/internal/config"
	"github.com/edvin/periodical/internal/core"
	"github.com/edvin/periodical/internal/db"
	"github.com/edvin/periodical/internal/logging"
	"github.com/edvin/periodical/internal/metrics"
	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/site"
	"github.com/edvin/periodical/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "backup-worker"
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()

	opts, err := cfg.TemporalOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal client")
	}
	if opts.ConnectionOptions.TLS != nil {
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	st, err := site.New(logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure site")
	}

	var mirror activity.OffsiteStore
	if st.Offsite != nil {
		mirror = st.Offsite
		logger.Info().Str("bucket", cfg.OffsiteS3Bucket).Msg("offsite archive copies enabled")
	}

	events := core.NewBackupEventSubscriber(core.NewHistoryService(corePool))

	w := worker.New(tc, core.BackupTaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ActivityErrorInterceptor{}},
	})

	w.RegisterActivity(activity.NewBackup(logger, st.Creator, st.Storage, mirror, events, activity.BackupConfig{
		Name:          cfg.SiteName,
		MaxAge:        cfg.BackupMaxAge,
		RetentionDays: cfg.BackupRetentionDays,
	}))

	w.RegisterWorkflow(workflow.CreateArchiveWorkflow)
	w.RegisterWorkflow(workflow.MonitorArchivesWorkflow)
	w.RegisterWorkflow(workflow.CleanupArchivesWorkflow)

	if cfg.MetricsAddr != "" {
		metrics.RegisterLedgerPoolMetrics(prometheus.DefaultRegisterer, corePool)
		prometheus.MustRegister(metrics.NewArchiveCollector(st.Storage))
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.BackupTaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Errors for already-existing schedules are ignored so that re-deploys
	// do not fail.
	registerCronSchedules(ctx, tc, core.BackupTaskQueue, cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func cronSchedules(cfg *config.Config) []cronSchedule {
	return []cronSchedule{
		{
			id:       cfg.SiteName + "-backup-nightly",
			cron:     "0 2 * * *",
			workflow: workflow.CreateArchiveWorkflow,
			args:     []interface{}{model.CreateArchiveParams{Mode: model.BackupModeFull}},
		},
		{
			id:       cfg.SiteName + "-backup-monitor",
			cron:     "0 6 * * *",
			workflow: workflow.MonitorArchivesWorkflow,
			args:     []interface{}{cfg.SiteName},
		},
		{
			id:       cfg.SiteName + "-backup-retention",
			cron:     "0 1 * * *",
			workflow: workflow.CleanupArchivesWorkflow,
		},
	}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, cfg *config.Config, logger zerolog.Logger) {
	scheduleClient := tc.ScheduleClient()

	for _, s := range cronSchedules(cfg) {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
				logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
			} else {
				logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
			}
		} else {
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
}
