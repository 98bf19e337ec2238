package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/dashboard"
	"github.com/sitecms/sitecms/internal/logger"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Component("dashboard")

	log.Info().Str("version", version).Msg("Starting sitecms admin dashboard...")

	stores := dashboard.MemoryStores()
	if cfg.Dashboard.TokenStore == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("redis", cfg.Redis.Address).Msg("Failed to connect to Redis")
		}
		stores = dashboard.RedisStores(rdb, cfg.Dashboard.TokenPrefix)
	} else {
		log.Warn().Msg("Keeping session tokens in memory; sessions are lost on restart")
	}

	d, err := dashboard.New(cfg.Dashboard, apiclient.New(cfg.Dashboard.APIBaseURL), log, dashboard.WithStores(stores))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dashboard")
	}

	// Start HTTP server (this blocks)
	if err := d.Start(); err != nil {
		log.Fatal().Err(err).Msg("Dashboard failed")
	}
}
