// Command server runs the ttyflow backend: PTY sessions fronted by a
// flow-controlled WebSocket stream and a small REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/config"
	"github.com/ttyflow/backend/internal/logging"
	"github.com/ttyflow/backend/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	logLevel := flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}
