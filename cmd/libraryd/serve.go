package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/config"
	"github.com/bookstore/services/library/internal/events"
	grpcserver "github.com/bookstore/services/library/internal/grpc"
	"github.com/bookstore/services/library/internal/httpapi"
	"github.com/bookstore/services/library/internal/inventory"
	"github.com/bookstore/services/library/internal/metrics"
	"github.com/bookstore/services/library/internal/repo"
	"github.com/bookstore/services/library/internal/service"
	"github.com/bookstore/services/library/pkg/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load())
		},
	}
}

func serve(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ttl, _ := cfg.TokenLifetime()

	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Library service starting")

	database, err := openDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to prepare database", zap.Error(err))
		return err
	}
	defer database.Close()

	// Initialize repositories
	books := repo.NewCatalogRepository(database, log)
	users := repo.NewUserRepository(database, log)
	issues := repo.NewIssueRepository(database, log)

	publisher := connectPublisher(cfg, log)
	defer publisher.Close()

	dispatcher := events.NewDispatcher(log)
	defer dispatcher.Wait()

	m := metrics.New(books, log)
	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), auth.WithTTL(ttl))

	api := httpapi.NewServer(httpapi.Deps{
		Catalog:  service.NewCatalogService(books, publisher, dispatcher, log),
		Members:  service.NewMemberService(users, issues, log),
		Sessions: service.NewSessionService(users, tokens, log),
		Engine:   inventory.NewEngine(issues, publisher, dispatcher, m, log),
		Tokens:   tokens,
		Policy:   auth.DefaultPolicy(),
		Database: database,
		Events:   publisher,
		Metrics:  m,
		Log:      log,
	})

	// Create gRPC server
	grpcServer := grpcserver.NewServer(grpcserver.NewHealthServer(database, publisher, log), log)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Error("Failed to listen on gRPC port", zap.Error(err))
		return err
	}

	gin.SetMode(cfg.GinMode)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      api.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 2)

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			serveErr <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serveErr:
		log.Error("Server failed", zap.Error(runErr))
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("Server stopped")
	return runErr
}

// connectPublisher falls back to a no-op publisher when no broker is
// configured or reachable.
func connectPublisher(cfg *config.Config, log *zap.Logger) events.Emitter {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, events disabled")
		return events.NopPublisher{}
	}

	log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return publisher
}
