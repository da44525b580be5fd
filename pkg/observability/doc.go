// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup and health checks for the dues engine.
//
// # Logging
//
//	log, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	log.WithField("invoice_id", inv.ID).Info("invoice created")
//
// Services take a logrus.FieldLogger. WithTraceContext adds trace and span
// IDs when the context carries a recording span.
//
// # Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.InvoiceCreated("bulk")
//
// Recording methods are no-ops on a nil *Metrics.
//
// # Health
//
//	checker := observability.NewHealthChecker(store, redisClient, version)
//	observability.RegisterHealthRoutes(opsMux, checker)
//
// Storage failure makes the service unready; a redis failure only degrades it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, log)
//	defer providers.Shutdown(ctx)
package observability
