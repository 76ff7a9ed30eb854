// Package httpserver wraps net/http's Server with graceful shutdown,
// signal handling and structured logging hooks.
//
//	var cfg httpserver.Config
//	config.MustLoad(&cfg)
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server exited", logger.Error(err))
//	}
//
// Run blocks until the context is cancelled, SIGINT/SIGTERM arrives, or the
// listener fails. HealthCheckHandler builds liveness/readiness probe
// endpoints from dependency check functions such as pg.Healthcheck.
package httpserver
