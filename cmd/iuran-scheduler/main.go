package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/krama-desa/iuran/pkg/app"
	"github.com/krama-desa/iuran/pkg/config"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/sirupsen/logrus"
)

var (
	configFile = flag.String("config", "", "Path to a YAML config file (overrides IURAN_CONFIG_FILE)")
	schedule   = flag.String("schedule", "", "Cron schedule for bulk billing (overrides the configured schedule)")
	runOnce    = flag.Bool("run-once", false, "Run bulk billing once and exit")
	period     = flag.String("period", "", "Period to bill (YYYY-MM). If empty, bills the current month. Only used with --run-once")
)

func main() {
	flag.Parse()

	if *configFile != "" {
		os.Setenv("IURAN_CONFIG_FILE", *configFile)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iuran-scheduler: %v\n", err)
		os.Exit(1)
	}
	if *schedule != "" {
		cfg.Scheduler.Schedule = *schedule
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iuran-scheduler: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("scheduler exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)
	defer func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()
	if err := app.InitTelemetry(ctx, cfg, log, sm); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	sm.Register("app", func(context.Context) error { return a.Close() })

	job, err := a.BulkJob()
	if err != nil {
		return err
	}

	// Run once mode, for backfills
	if *runOnce {
		var periodDate time.Time
		if *period != "" {
			periodDate, err = time.ParseInLocation("2006-01", *period, a.Location)
			if err != nil {
				return fmt.Errorf("invalid period %q: %w", *period, err)
			}
		}
		_, err := job.Run(ctx, periodDate)
		return err
	}

	c, err := a.NewScheduler(cfg.Scheduler.Schedule, job)
	if err != nil {
		return err
	}
	c.Start()
	log.WithFields(logrus.Fields{
		"schedule": cfg.Scheduler.Schedule,
		"timezone": a.Location.String(),
	}).Info("bulk billing scheduler started")

	<-ctx.Done()
	log.Info("stopping scheduler")
	// Wait for a running job to finish
	<-c.Stop().Done()
	return nil
}
