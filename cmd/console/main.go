package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/pflag"

	"nexusdesk/internal/api"
	"nexusdesk/internal/config"
	"nexusdesk/internal/console"
	"nexusdesk/internal/realtime"
	"nexusdesk/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envErr := godotenv.Load()

	cfg := config.Load()
	fs := pflag.NewFlagSet("nexusdesk-console", pflag.ContinueOnError)
	cfg.ConsoleFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg.Normalize()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if envErr != nil {
		logger.Debug(".env file not found, using environment and defaults", "error", envErr)
	}
	if cfg.OrganizationID == "" {
		return errors.New("organization id is required (ORGANIZATION_ID or --org)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout})
	feed := realtime.New(realtime.Options{
		URL:        cfg.WSURL,
		ClientID:   cfg.ClientID,
		Reconnect:  cfg.Reconnect,
		MinBackoff: cfg.ReconnectMin,
		MaxBackoff: cfg.ReconnectMax,
		Logger:     logger.With("component", "feed"),
	})
	st := store.New(client, store.Options{
		OrganizationID: cfg.OrganizationID,
		StatusFilter:   cfg.StatusFilter,
		Logger:         logger.With("component", "store"),
	})
	session := console.NewSession(st, feed, client, console.SessionOptions{
		OrganizationID: cfg.OrganizationID,
		PollInterval:   cfg.PollInterval,
		Logger:         logger.With("component", "session"),
	})
	srv := console.NewServer(session, cfg, logger)

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.Close()
	go srv.Run(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.ConsolePort,
		Handler:           c.Handler(srv.SetupRouter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("========================================")
	fmt.Println("  NexusDesk Console")
	fmt.Println("========================================")
	fmt.Printf("  Organization: %s\n", cfg.OrganizationID)
	fmt.Printf("  Console: http://localhost:%s\n", cfg.ConsolePort)
	fmt.Printf("  API: %s\n", cfg.APIURL)
	fmt.Printf("  Push: %s/%s\n", cfg.WSURL, feed.ClientID())
	fmt.Println("========================================")

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}
