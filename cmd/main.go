package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
	"chat-relay/infrastructure/ws"
	"chat-relay/moderation"
	"chat-relay/notify"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the server lifecycle. Returning
// the error to main instead of exiting keeps the defers (database and
// index close) running on every path.
func run() error {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage: BadgerDB for the records, bluge for the search index
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if log.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		log.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, inspectMapper)
	}

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = writer.Close()
	}()

	// 3. Stores
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, config.HistoryPageSize)
	index := repositories.NewSearchIndex(writer, log)

	if config.SeedDemo {
		if err := seedDemo(ctx, log, users, conversations); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	// 4. Moderation: the blocklist dictionaries ship inside the binary
	blocklist, err := moderation.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("loading blocklists: %w", err)
	}
	log.Info(fmt.Sprintf("%d blocklist dictionaries loaded [%s]",
		len(blocklist.Languages), strings.Join(blocklist.Languages, ", ")))
	log.Info(fmt.Sprintf("%d unique blocklisted words loaded", len(blocklist.Words)))
	moderator, err := moderation.NewModerator(blocklist.Words, charReplacement, log)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}

	// 5. Hub, workers and supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	hub := runtime.NewHub(log, sup,
		presence.NewRegistry(), runtime.NewRooms(),
		conversations, messages, index, notify.NewLogNotifier(log),
		moderator,
		config.BufferSize, config.SinkTimeout, config.MaxContentLength)

	indexSink := sink.NewIndexSink(index, log, config.IndexBatchSize, config.IndexFlushInterval)
	defer indexSink.Close()
	hub.Add(indexSink)

	sup.Add(workers.NewTelemetry(log, config.MetricInterval, hub.Stats))

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubDone := make(chan struct{})
	go func() {
		_ = hub.Start(ctx)
		close(hubDone)
	}()

	// 7. HTTP server carrying the websocket endpoint
	authService := services.NewAuthService(users,
		auth.NewTokens(config.AuthTokenSecret, config.AuthTokenDuration))
	server := ws.NewServer(log, hub, authService, config.ConnectionBufferSize, ws.Timing{
		WriteTimeout: config.WriteTimeout,
		PongTimeout:  config.PongTimeout,
		PingInterval: config.PingInterval,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Routes()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	hub.Stop()
	<-hubDone
	log.Info("Relay stopped cleanly")

	return nil
}
