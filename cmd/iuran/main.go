package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/krama-desa/iuran/pkg/app"
	"github.com/krama-desa/iuran/pkg/config"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides IURAN_CONFIG_FILE)")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("IURAN_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iuran: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iuran: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)
	if err := app.InitTelemetry(ctx, cfg, log, sm); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	sm.Register("app", func(context.Context) error { return a.Close() })

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, a.HealthChecker(version))
	if cfg.Observability.MetricsEnabled {
		opsMux.Handle("/metrics", observability.MetricsHandler(a.Registry))
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(log, "api", apiServer) })
	g.Go(func() error { return serve(log, "ops", opsServer) })
	g.Go(func() error {
		reportDBStats(gctx, a)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			apiServer.Shutdown(shutdownCtx),
			opsServer.Shutdown(shutdownCtx),
		)
	})

	log.WithFields(logrus.Fields{
		"version":  version,
		"storage":  cfg.Storage.Driver,
		"timezone": a.Location.String(),
	}).Info("iuran started")

	err = g.Wait()
	if shutdownErr := sm.Shutdown(context.Background()); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	return err
}

func serve(log logrus.FieldLogger, name string, srv *http.Server) error {
	log.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// reportDBStats publishes connection pool gauges until ctx ends
func reportDBStats(ctx context.Context, a *app.App) {
	if _, ok := a.DBStats(); !ok {
		return
	}
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats, ok := a.DBStats(); ok {
				a.Metrics.UpdateDBStats(stats)
			}
		}
	}
}
