package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/client"
	"github.com/veridian-labs/be-sdlc-approvals/internal/config"
	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/handler"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
	"github.com/veridian-labs/be-sdlc-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Logger()

	log.Info().
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting SDLC Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	setRepo := repository.NewApproverSetRepository(db)
	roundRepo := repository.NewApprovalRoundRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)
	requestRepo := repository.NewStatusRequestRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	signatureRepo := repository.NewSignatureRepository(db)

	// NATS is optional; without it notifications are dropped.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; notifications disabled")
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(nc, log)

	identityClient := client.NewIdentityClient(cfg.Identity.BaseURL, cfg.Identity.Timeout)
	signerClient := client.NewSignerClient(cfg.Signer.BaseURL, cfg.Signer.Timeout)

	// Initialize services
	approvalService := service.NewApprovalService(
		setRepo, roundRepo, decisionRepo, documentRepo, requestRepo,
		auditRepo, identityClient, notifier, log,
	)
	statusService := service.NewStatusService(
		setRepo, requestRepo, projectRepo, auditRepo, notifier, log,
	)
	var signerIface service.SignerClientInterface
	if signerClient != nil {
		signerIface = signerClient
	}
	signingService := service.NewSigningService(
		documentRepo, roundRepo, decisionRepo, signatureRepo,
		signerIface, approvalService, auditRepo, log,
	)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(approvalService, statusService, signingService, log)
	router := handler.NewRouter(httpHandler, handler.RouterConfig{
		JWTSecret:           cfg.Auth.JWTSecret,
		SignerWebhookSecret: cfg.Signer.WebhookSecret,
		RequestTimeout:      cfg.Server.WriteTimeout,
	}, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
