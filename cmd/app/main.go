package main

import (
	"context"
	"flag"
	"log"
	"os"

	"PairPulse/internal/di"
	"PairPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s pair=%s interval=%s source=%s storage=%s",
		cfg.Environment, cfg.Analytics.Pair(), cfg.Analytics.Interval, cfg.Ingestion.Source, cfg.Storage.Backend)

	ctx := context.Background()
	app, err := di.InitializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM or a component fails
	if err := app.Run(ctx); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
