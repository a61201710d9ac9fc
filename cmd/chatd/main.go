// Package main is the entry point for chatd, the development chat
// backend. It serves the session REST surface and the streaming chat
// endpoint the engine consumes.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/config"
	"github.com/aria-ai/chat-engine/internal/handler"
	"github.com/aria-ai/chat-engine/internal/llm"
	"github.com/aria-ai/chat-engine/internal/middleware"
	natsclient "github.com/aria-ai/chat-engine/internal/nats"
	"github.com/aria-ai/chat-engine/internal/service"
	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting chatd", zap.String("port", cfg.ServerPort))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatd", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// NATS is optional; without it chat events are simply not
	// published.
	var natsConn *natsclient.Client
	var publisher *natsclient.Publisher
	if cfg.NATSURL != "" {
		natsConn, err = natsclient.Connect(natsclient.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to nats", zap.Error(err))
			os.Exit(1)
		}
		defer natsConn.Close()

		publisher = natsclient.NewPublisher(natsConn, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure event stream", zap.Error(err))
			os.Exit(1)
		}
	}

	generator, err := llm.New(llm.Provider(cfg.DefaultLLM), cfg.AnthropicAPIKey, cfg.OpenAIAPIKey)
	if err != nil {
		log.Error("failed to create generator", zap.Error(err))
		os.Exit(1)
	}
	log.Info("reply generator ready", zap.String("provider", generator.Name()))

	store := service.NewConversationStore(publisher, log)
	chatSvc := service.NewChatService(store, generator, log)

	healthHandler := handler.NewHealthHandler(natsConn)
	sessionHandler := handler.NewSessionHandler(store, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	authHandler := handler.NewAuthHandler(cfg.JWTSecret, cfg.JWTExpiration, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.JWTSecret != "" {
		r.Post("/auth/token", authHandler.Token)
	}

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/ai/chat", chatHandler.Stream)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/list", sessionHandler.List)
			r.Delete("/batch-delete", sessionHandler.BatchDelete)
			r.Delete("/{conversationId}", sessionHandler.Delete)
			r.Get("/history/{conversationId}", sessionHandler.History)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down chatd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("chatd stopped")
}
