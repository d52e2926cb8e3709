package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	var bootstrapOnly bool
	flag.BoolVar(&bootstrapOnly, "bootstrap", false, "Seed an empty store with the default configuration and exit")
	flag.Parse()

	// Initialize logging
	logging.InitGlobalLogger()
	defer logging.MustSync()

	logging.Info("Starting traffic router",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
		logging.Field{Key: "version", Value: "1.0.0"},
	)

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 10*time.Second)
	err = app.Warm(warmCtx)
	cancelWarm()
	if bootstrapOnly {
		if err != nil {
			logging.Error("Bootstrap failed", err)
		}
		return err
	}
	if err != nil {
		// Runtime traffic still reaches the origin without a bundle
		logging.Warn("Configuration not loaded at startup", logging.Field{Key: "error", Value: err.Error()})
	}

	srv, _ := app.RunServer()
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logging.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
