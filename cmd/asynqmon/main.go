package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"

	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Component("asynqmon")

	h := asynqmon.New(asynqmon.Options{
		RootPath: "/asynqmon",
		RedisConnOpt: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		ReadOnly: os.Getenv("ASYNQMON_READ_ONLY") == "true",
	})
	defer h.Close()

	port := os.Getenv("ASYNQMON_PORT")
	if port == "" {
		port = "8090"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", srv.Addr).Str("redis", cfg.Redis.Address).Msg("Starting Asynqmon")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Asynqmon failed")
	}
}
