package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BulkJob is one unattended bulk billing run: preview the period, then
// commit every previewed line as the scheduler's system actor.
type BulkJob struct {
	generator *billing.Generator
	// purgeTiers empties the tier cache; tier edits land in the API process
	purgeTiers func()
	actor      rbac.Actor
	peturunan  decimal.Decimal
	dedosan    decimal.Decimal
	clock      clockwork.Clock
	log        logrus.FieldLogger
}

// BulkJob builds the scheduled job from the scheduler configuration
func (a *App) BulkJob() (*BulkJob, error) {
	sc := a.Config.Scheduler
	peturunan, dedosan, err := sc.Surcharges()
	if err != nil {
		return nil, err
	}
	actor := rbac.SystemActor(sc.ActorName)
	actor.UserID = sc.ActorID
	return &BulkJob{
		generator:  a.Generator,
		purgeTiers: a.Resolver.Purge,
		actor:      actor,
		peturunan:  peturunan,
		dedosan:    dedosan,
		clock:      clockwork.NewRealClock(),
		log:        a.Log.WithField("component", "bulk_scheduler"),
	}, nil
}

// Run bills periodDate's month; the zero time means the current month.
// A rerun for a period that is already billed creates nothing.
func (j *BulkJob) Run(ctx context.Context, periodDate time.Time) (*billing.BulkResult, error) {
	if periodDate.IsZero() {
		periodDate = j.clock.Now()
	}
	j.purgeTiers()

	preview, err := j.generator.PreviewBulk(ctx, j.actor, billing.BulkRequest{
		PeriodDate: periodDate,
		Peturunan:  j.peturunan,
		Dedosan:    j.dedosan,
	})
	if err != nil {
		return nil, fmt.Errorf("preview failed: %w", err)
	}
	log := j.log.WithFields(logrus.Fields{
		"period":   preview.Period.String(),
		"lines":    len(preview.Lines),
		"excluded": preview.ExcludedCount,
	})
	if len(preview.Lines) == 0 {
		log.Info("nothing to bill")
		return &billing.BulkResult{Period: preview.Period, Total: decimal.Zero}, nil
	}

	result, err := j.generator.CommitBulk(ctx, j.actor, preview.PeriodDate, preview.Lines)
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"created": result.CreatedCount,
		"skipped": result.SkippedCount,
		"total":   result.Total.String(),
	}).Info("bulk billing run completed")
	return result, nil
}

// NewScheduler registers job on spec, evaluated in the billing time zone.
// Overlapping runs are skipped and a panicking run is recovered.
func (a *App) NewScheduler(spec string, job *BulkJob) (*cron.Cron, error) {
	logger := cronLogger{log: a.Log.WithField("component", "cron")}
	c := cron.New(
		cron.WithLocation(a.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(spec, func() {
		defer observability.RecoverPanic(a.Log, "bulk billing run")
		if _, err := job.Run(context.Background(), time.Time{}); err != nil {
			a.Log.WithError(err).Error("scheduled bulk billing failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule bulk billing %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []any) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			f[k] = keysAndValues[i+1]
		}
	}
	return f
}
