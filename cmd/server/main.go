// Command server runs the AetherLMS HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aetherlms/lms-server/internal/app"
	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	log := logging.New("lms-server", cfg.Logging.Level, cfg.Logging.Format)
	log.WithFields(map[string]interface{}{
		"environment": cfg.Environment,
		"offline":     cfg.OfflineMode(),
		"addr":        cfg.Server.Address(),
	}).Info("starting")

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("build application")
		return 1
	}

	sup := server.New(application, server.Options{
		Config:     cfg.Server,
		Production: cfg.IsProduction(),
		Logger:     log,
		Database:   application.Database(),
	})
	return sup.Run(context.Background())
}
