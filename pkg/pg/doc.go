// Package pg bootstraps the PostgreSQL layer for coachkit: a pgx/v5
// connection pool with retrying startup, goose schema migrations, a
// healthcheck closure, and error classifiers that let callers branch on
// common SQLSTATE outcomes (duplicate keys, serialization failures) without
// importing the driver.
//
// Config is populated from environment variables via caarlos0/env, so wiring
// the database is:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    log.Error("db unavailable", "error", err)
//	    os.Exit(1)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//	    os.Exit(1)
//	}
package pg
