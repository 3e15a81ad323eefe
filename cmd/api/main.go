package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loanconnect/internal/backend"
	"loanconnect/internal/config"
	"loanconnect/internal/server"
	"loanconnect/internal/storage"
	"loanconnect/internal/store"
	"loanconnect/internal/wizard"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting loanconnect",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.URL),
		zap.String("storage", cfg.Storage.Driver),
	)

	// Open client state storage
	st, closeStorage, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStorage()

	// Stores start empty and are hydrated in the background; dashboard
	// requests wait for both.
	loans := store.NewLoanStore(st, store.WithLogger(logger))
	smes := store.NewSMEStore(st, store.WithLogger(logger))
	go func() {
		if err := loans.Hydrate(ctx); err != nil {
			logger.Warn("loan store starts empty", zap.Error(err))
		}
		if err := smes.Hydrate(ctx); err != nil {
			logger.Warn("sme store starts empty", zap.Error(err))
		}
		logger.Info("client state hydrated", zap.Int("loans", len(loans.GetLoans())))
	}()

	// Lending backend
	client, err := backend.New(cfg.Backend.URL, cfg.Backend.Timeout, backend.WithLogger(logger.Named("backend")))
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	// Application wizard
	wiz := wizard.New(client, loans,
		wizard.WithLogger(logger.Named("wizard")),
		wizard.WithConfig(wizard.Config{
			OTPDelay:      cfg.Wizard.OTPDelay,
			UploadTick:    cfg.Wizard.UploadTick,
			StageDuration: cfg.Wizard.StageDuration,
		}),
		wizard.WithNavigator(func(path string) {
			logger.Info("application submitted", zap.String("redirect", path))
		}),
	)
	defer wiz.Close()

	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		Storage:    st,
		Loans:      loans,
		SMEs:       smes,
		Backend:    client,
		Wizard:     wiz,
		Protected:  cfg.Wizard.ProtectedRoutes,
		SignInPath: cfg.Wizard.SignInPath,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("loanconnect ready",
		zap.Int("port", cfg.Server.Port),
	)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
