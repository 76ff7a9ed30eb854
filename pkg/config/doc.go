// Package config loads application configuration from environment variables
// into tagged structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file is loaded once per process (if present), and each
// configuration type is parsed once and cached for the lifetime of the
// process.
//
//	type DatabaseConfig struct {
//	    DSN string `env:"DATABASE_URL,required"`
//	}
//
//	var db DatabaseConfig
//	if err := config.Load(&db); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// MustLoad panics on failure for configuration the process cannot run
// without. LoadEnv loads additional .env files before parsing.
package config
