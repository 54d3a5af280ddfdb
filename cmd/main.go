package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"whisper/presence"
	"whisper/repositories"
	"whisper/runtime"
	"whisper/runtime/workers"
	"whisper/transport"
	"whisper/typing"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close, worker
// shutdown) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & core components
	messageRepository, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()
	rosterRepository := repositories.NewRosterRepository(db)

	registry := presence.NewRegistry(log)
	known, err := rosterRepository.All(context.Background())
	if err != nil {
		return fmt.Errorf("loading known identities: %w", err)
	}
	registry.Seed(known)
	log.Info("presence registry seeded", "identities", len(known))

	tracker := typing.NewTracker(config.TypingTTL, time.Now)
	coordinator := runtime.NewCoordinator(
		log, registry, messageRepository, rosterRepository, tracker,
		config.HistoryLimit, config.PersistTimeout,
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := workers.NewSupervisor(log)
	sup.Add(workers.NewTypingSweeper(log, tracker, config.TypingSweepInterval))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP server (WebSocket gateway + health probe)
	gateway := transport.NewGateway(log, coordinator, transport.GatewayConfig{
		SendBufferSize: config.SendBufferSize,
		ReadTimeout:    config.ReadTimeout,
		AllowedOrigins: strings.Split(config.AllowedOrigins, ","),
	})
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: gateway.Handler()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	coordinator.Shutdown(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
