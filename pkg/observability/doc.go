// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for atrium processes.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithField("workspace_id", ws).Info("Created invite")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx, logger).Warn("Denied")
//
// # Metrics
//
// Every Record method is safe on a nil *Metrics, so components run unchanged without
// instrumentation:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordDecision("canvas.set_default", false)
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//	ctx, span := observability.Tracer().Start(ctx, "invite.accept")
package observability
