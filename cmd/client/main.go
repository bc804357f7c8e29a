package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"prediction-platform/internal/cli"
	"prediction-platform/internal/config"
	"prediction-platform/internal/logger"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.Debug {
		if err := logger.Init("development"); err != nil {
			os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("Failed to start client: " + err.Error() + "\n")
		os.Exit(1)
	}

	code := app.Run(ctx, os.Args[1:])
	app.Close()
	stop()
	logger.Sync()
	os.Exit(code)
}
