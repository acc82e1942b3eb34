package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nzskirting/orderdesk/internal/api"
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.NewLogger(cfg.LogLevel)

	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, l); err != nil {
		l.Error("Order desk stopped with error", "error", err)
		l.Sync()
		os.Exit(1)
	}

	l.Sync()
}

// run serves until SIGINT/SIGTERM or a listener failure
func run(cfg *config.Config, l logger.Logger) error {
	l.Info("Starting order desk", "env", cfg.Env, "port", cfg.Port)

	if cfg.Admin.PIN == "" {
		l.Warn("ADMIN_PIN is not set, admin login is disabled")
	}

	server, err := api.NewServer(cfg, l)

	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	l.Info("Server exiting")
	return nil
}
