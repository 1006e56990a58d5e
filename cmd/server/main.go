package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/vanishchat/internal/server"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	config, err := server.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := server.NewLogger(config.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting relay server",
		"addr", config.Addr(),
		"allowed_origins", config.AllowedOrigins,
		"delete_grace", config.DeleteGrace,
		"sweep_interval", config.SweepInterval,
		"idle_threshold", config.IdleThreshold)

	return server.New(config, log, clockwork.NewRealClock()).Run(ctx)
}
