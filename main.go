package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"askme/config"
	"askme/database"
	"askme/llmclient"
	"askme/web"
	"askme/web/format"
	"askme/web/services"
	"askme/web/types"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	store, err := database.NewStore(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	// --- Ensure Schema Exists ---
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	// Questions left pending by a previous run will never be answered.
	if failed, err := store.FailPendingEntries(ctx, types.ErrorAnswer); err != nil {
		logger.Warn("Failed to close abandoned entries", zap.Error(err))
	} else if failed > 0 {
		logger.Info("Closed entries abandoned by previous run", zap.Int64("count", failed))
	}

	renderer, err := format.NewRenderer(cfg.RenderCacheSize)
	if err != nil {
		logger.Fatal("Failed to initialize renderer", zap.Error(err))
	}

	provider, err := llmclient.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	chatService := services.NewChatService(store, provider, services.ChatOptions{
		RequestTimeout:      cfg.LLMRequestTimeout,
		IncludeHistory:      cfg.IncludeHistory,
		HistoryContextTurns: cfg.HistoryContextTurns,
		TitleMaxLength:      cfg.TitleMaxLength,
	}, logger)
	sessionService := services.NewSessionService(store, logger)
	cleanupService := web.NewCleanupService(store, chatService, logger)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.CleanupEnabled {
		go web.StartSessionCleanup(ctx, cfg, cleanupService, logger)
	}

	webServer := web.NewServer(web.Services{
		Chat:     chatService,
		Sessions: sessionService,
		Stream:   services.NewStreamService(logger),
		Cleanup:  cleanupService,
		Renderer: renderer,
	}, logger, cfg)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting Ask Me web server",
		zap.String("port", port),
		zap.String("provider", provider.Name()),
		zap.String("store", cfg.StoreDriver))
	serveErr := webServer.Start(ctx, port)

	// Let in-flight answers reach the store before exiting.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.LLMRequestTimeout+5*time.Second)
	defer drainCancel()
	if err := chatService.Shutdown(drainCtx); err != nil {
		logger.Warn("Exiting with answers still in flight", zap.Error(err))
	}

	if serveErr != nil {
		logger.Error("Web server error", zap.Error(serveErr))
		os.Exit(1)
	}
}
