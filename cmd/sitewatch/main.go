// Command sitewatch runs both event pipelines behind one HTTP front
// door: the website-change watcher and the alert-to-ticketing bridge.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"sitewatch/internal/app"
	"sitewatch/internal/logging"
)

func main() {
	// Load .env if present (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewStdoutLogger("sitewatch")

	application, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
