package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sitecms/sitecms/internal/auth"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/logger"
	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/server"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	seedFile := flag.String("seed", "", "YAML file with initial content, applied to empty tables")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	// Create server
	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	if *seedFile == "" {
		*seedFile = cfg.Database.SeedFile
	}
	if *seedFile != "" {
		seed, err := models.LoadSeed(*seedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *seedFile).Msg("Failed to load seed")
		}
		result, err := models.ApplySeed(srv.GetDB(), seed, auth.HashPassword)
		if err != nil {
			log.Fatal().Err(err).Str("file", *seedFile).Msg("Failed to apply seed")
		}
		log.Info().Interface("inserted", result).Str("file", *seedFile).Msg("Seed applied")
	}

	log.Info().Str("version", version).Msg("Starting sitecms API server...")

	// Start HTTP server (this blocks)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
