/*
Package main is the entry point for the chat server.

It is responsible for loading configuration, initializing the global
logging system, wiring the credential store (flat file or Postgres), the
session and room registries, and the AI backend, then running the TLS
chat listener and the HTTP gateway until an operating system interrupt
signal (SIGINT, SIGTERM) triggers a graceful shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PedroMMarinho/FEUP-CPD/internal/app/ai"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/auth"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/chat"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/db"
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/room"
	"github.com/PedroMMarinho/FEUP-CPD/internal/configs"
	"github.com/PedroMMarinho/FEUP-CPD/internal/handler"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
	"github.com/PedroMMarinho/FEUP-CPD/internal/server"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("chat_port", cfg.ChatPort).
		Int("http_port", cfg.HTTPPort).
		Dur("session_ttl", cfg.SessionTTL).
		Dur("room_grace_period", cfg.RoomGracePeriod).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credential store: Postgres when DATABASE_URL is set, flat file
	// otherwise.
	var creds auth.CredentialStore
	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		defer pool.Close()

		creds = db.NewCredentialStore(pool)
		logx.Info("Using Postgres credential store")
	} else {
		fileStore, err := auth.NewFileStore(cfg.UsersFile)
		if err != nil {
			logx.Fatal(err, "Failed to open credential file")
		}
		defer fileStore.Close()

		creds = fileStore
	}

	aiManager := ai.NewManager(ai.NewClient(cfg.OllamaURL, cfg.OllamaModel))

	deps := &chat.Deps{
		Auth:        auth.NewManager(creds, cfg.SessionTTL),
		Rooms:       room.NewRegistry(aiManager, cfg.RoomGracePeriod),
		Broadcaster: chat.NewBroadcaster(),
	}

	chatServer, err := server.New(cfg, deps)
	if err != nil {
		logx.Fatal(err, "Failed to start chat server")
	}

	go func() {
		if err := chatServer.Serve(ctx); err != nil {
			logx.Fatal(err, "Chat server failed")
		}
	}()

	// HTTP gateway: health endpoint and the WebSocket access path.
	router := handler.Router(&handler.AppDeps{Chat: deps, Config: cfg})

	gatewayAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	gateway := &http.Server{
		Addr:        gatewayAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("HTTP gateway starting on http://localhost%s", gatewayAddr))
		if err := gateway.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Gateway failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shut down with a timeout.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Gateway forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
