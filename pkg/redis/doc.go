// Package redis provides helpers for connecting to a Redis server.
//
// Connect retries the connection according to Config, which is populated
// from environment variables via github.com/caarlos0/env. Healthcheck
// returns a probe function suitable for HTTP readiness endpoints.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("redis: %v", err)
//	}
//	defer client.Close()
package redis
