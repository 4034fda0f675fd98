package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"parking-ticket/internal/clock"
	"parking-ticket/internal/config"
	"parking-ticket/internal/logging"
	"parking-ticket/internal/parking"
	"parking-ticket/internal/server"
	"parking-ticket/internal/storage/memory"
	"parking-ticket/internal/storage/postgres"
	"parking-ticket/migrations"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Warning: could not load .env: %v", err)
	}
	cfg := config.Load()

	mode := flag.String("mode", cfg.Mode, "Mode to run: cli, server, or both")
	port := flag.String("port", cfg.Port, "Port for HTTP server")
	flag.Parse()
	cfg.Mode = *mode
	cfg.Port = *port

	if err := run(cfg); err != nil {
		log.Fatalf("parking-lot: %v", err)
	}
}

func run(cfg *config.Config) error {
	switch cfg.Mode {
	case "cli", "server", "both":
	default:
		return fmt.Errorf("invalid mode: %s. Must be cli, server, or both", cfg.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryProvider, err := parking.NewTelemetryProvider(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdownTelemetry(telemetryProvider)

	logger := logging.New(cfg.OTelServiceName, cfg.Environment)
	slog.SetDefault(logger)

	spots, tickets, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator := parking.NewOrchestrator(
		spots,
		tickets,
		parking.NewFareCalculator(cfg.FareSchedule()),
		clock.NewSystem(),
		logger,
		parking.WithLoyaltyPolicy(cfg.LoyaltyPolicy()),
	)

	service, err := parking.NewInstrumentedOrchestrator(orchestrator, telemetryProvider)
	if err != nil {
		return fmt.Errorf("instrument orchestrator: %w", err)
	}

	switch cfg.Mode {
	case "cli":
		return runCLI(ctx, service, telemetryProvider, logger)
	case "server":
		return runServer(ctx, cfg, service, telemetryProvider, logger)
	default:
		return runBoth(ctx, stop, cfg, service, telemetryProvider, logger)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (parking.SpotAllocator, parking.TicketLedger, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Info("using in-memory store",
			slog.Int("car_spots", cfg.CarSpots),
			slog.Int("bike_spots", cfg.BikeSpots),
		)
		return memory.NewSpotPool(cfg.SpotCounts()), memory.NewTicketBook(), func() {}, nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBConnectRetries, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("using postgres store")

		spots := postgres.NewSpotRepository(pool)
		return spots, postgres.NewTicketRepository(pool, spots), pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("invalid store: %s. Must be %s or %s", cfg.Store, config.StoreMemory, config.StorePostgres)
	}
}

func runCLI(ctx context.Context, service parking.TicketService, telemetryProvider *parking.TelemetryProvider, logger *slog.Logger) error {
	shell := parking.NewShell(service, telemetryProvider, logger, os.Stdin, os.Stdout)

	// Run blocks on stdin, so a signal must not wait for the next line.
	done := make(chan error, 1)
	go func() {
		done <- shell.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}

func newServer(cfg *config.Config, service parking.TicketService, telemetryProvider *parking.TelemetryProvider, logger *slog.Logger) *server.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return server.NewServer(server.Options{
		Port:        cfg.Port,
		ServiceName: cfg.OTelServiceName,
		Service:     service,
		Telemetry:   telemetryProvider,
		Registry:    registry,
		Logger:      logger,
	})
}

func runServer(ctx context.Context, cfg *config.Config, service parking.TicketService, telemetryProvider *parking.TelemetryProvider, logger *slog.Logger) error {
	srv := newServer(cfg, service, telemetryProvider, logger)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	select {
	case err := <-serverDone:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	return shutdownServer(srv, logger)
}

func runBoth(ctx context.Context, stop context.CancelFunc, cfg *config.Config, service parking.TicketService, telemetryProvider *parking.TelemetryProvider, logger *slog.Logger) error {
	srv := newServer(cfg, service, telemetryProvider, logger)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan error, 1)
	go func() {
		cliDone <- runCLI(ctx, service, telemetryProvider, logger)
	}()

	var runErr error
	select {
	case err := <-serverDone:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case err := <-cliDone:
		logger.Info("CLI exited")
		runErr = err
	case <-ctx.Done():
		logger.Info("context cancelled")
	}
	stop()

	return errors.Join(runErr, shutdownServer(srv, logger))
}

func shutdownServer(srv *server.Server, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return err
	}
	return nil
}

func shutdownTelemetry(telemetryProvider *parking.TelemetryProvider) {
	log.Println("Shutting down telemetry...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down telemetry: %v", err)
	}
}
