// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/attachment"
	"github.com/pichehq/workspace-messaging/internal/config"
	"github.com/pichehq/workspace-messaging/internal/handler"
	"github.com/pichehq/workspace-messaging/internal/middleware"
	natsclient "github.com/pichehq/workspace-messaging/internal/nats"
	"github.com/pichehq/workspace-messaging/internal/service"
	"github.com/pichehq/workspace-messaging/internal/store"
	"github.com/pichehq/workspace-messaging/internal/stream"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "workspace-messaging", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the store
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	conversationStore := store.NewConversationStore(db, log)
	messageLog := store.NewMessageLog(db, log)
	contactStore := store.NewContactStore(db, log)

	// Live fan-out hub
	hub := stream.NewHub(messageLog, conversationStore, log)

	// Connect to NATS if configured; without it the instance runs
	// standalone and events stay local.
	var natsClient *natsclient.Client
	var events service.EventPublisher
	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		relay := natsclient.NewRelay(natsClient, hub, uuid.Must(uuid.NewV7()).String(), log)
		if err := relay.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		if err := relay.Start(relayCtx); err != nil {
			log.Error("failed to start relay", zap.Error(err))
			os.Exit(1)
		}
		events = relay
	}

	// Attachment pipeline
	blobs, err := attachment.NewDiskStore(cfg.BlobDir)
	if err != nil {
		log.Error("failed to open blob store", zap.Error(err))
		os.Exit(1)
	}
	pipeline := attachment.NewPipeline(blobs, cfg.PublicBaseURL, log)

	// Initialize services
	conversationSvc := service.NewConversationService(conversationStore, contactStore, hub, events, log)
	messageSvc := service.NewMessageService(messageLog, conversationStore, contactStore, pipeline, hub, events, log)
	forwardSvc := service.NewForwardService(messageSvc, messageLog, conversationStore, contactStore, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, natsClient)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, forwardSvc, log)
	streamHandler := handler.NewStreamHandler(messageSvc, conversationSvc, log)
	attachmentHandler := handler.NewAttachmentHandler(pipeline, log)
	contactHandler := handler.NewContactHandler(conversationSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Ensure)
			r.Get("/", conversationHandler.List)
			r.Get("/stream", streamHandler.Conversations)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)

				// Streaming
				r.Get("/stream", streamHandler.Messages)
			})
		})

		// Forwarding
		r.Post("/messages/{id}/forward", messageHandler.Forward)

		// Attachments
		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", attachmentHandler.Upload)
			r.Get("/{id}", attachmentHandler.Download)
		})

		// Contacts
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", contactHandler.List)
			r.Put("/me", contactHandler.UpsertMe)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
