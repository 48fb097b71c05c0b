package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/cache"
	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/database"
	"github.com/ekaya-inc/ekaya-drafts/pkg/handlers"
	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/mcp"
	mcptools "github.com/ekaya-inc/ekaya-drafts/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-drafts/pkg/quality"
	"github.com/ekaya-inc/ekaya-drafts/pkg/repositories"
	"github.com/ekaya-inc/ekaya-drafts/pkg/services"
	"github.com/ekaya-inc/ekaya-drafts/pkg/streaming"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand starts the HTTP server.
func NewServeCommand(version string) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(version)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")

	return cmd
}

// app holds the long-lived collaborators of a running server.
type app struct {
	db       *database.DB
	redis    *redis.Client
	recorder *services.AsyncUsageRecorder
	handler  http.Handler
}

// Close releases resources in reverse start order. Queued usage records are
// flushed before the database closes.
func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger, skipMigrations bool) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("standard_model", cfg.LLM.StandardModel),
		zap.String("fast_model", cfg.LLM.FastModel),
		zap.String("cache_store", cfg.Cache.Store))

	a, err := newApp(ctx, cfg, logger, skipMigrations)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses stay open for the whole generation.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-drafts",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, skipMigrations bool) (*app, error) {
	a := &app{}

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	if !skipMigrations {
		if err := migrateUp(cfg, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	store, err := a.cacheStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	responseCache := cache.NewResponseCache(store, logger)

	provider, err := llm.NewProvider(&llm.ProviderConfig{
		Kind:          cfg.LLM.Provider,
		Endpoint:      config.ResolveEndpointForDocker(cfg.LLM.Endpoint),
		APIKey:        cfg.LLM.APIKey(),
		StandardModel: cfg.LLM.StandardModel,
		FastModel:     cfg.LLM.FastModel,
		MaxTokens:     cfg.LLM.MaxTokens,
	}, llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.BreakerThreshold,
		ResetAfter: cfg.LLM.BreakerResetAfter,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	conversations := repositories.NewConversationRepository(db)
	ledger := services.NewUsageLedger(
		repositories.NewUsageRepository(db),
		repositories.NewTierRepository(db),
		services.LedgerConfig{QuotaOverrides: cfg.Quotas.Overrides()},
		logger,
	)
	a.recorder = services.NewAsyncUsageRecorder(ledger, logger, cfg.Streaming.UsageQueueSize)

	scorer := quality.NewScorer()
	orchestrator := streaming.NewOrchestrator(streaming.Deps{
		Provider: provider,
		Cache:    responseCache,
		Builder: prompts.NewBuilder(prompts.BuilderConfig{
			HistoryThreshold: cfg.Prompt.HistoryThreshold,
			TokenBudget:      cfg.Prompt.TokenBudget,
			ContextBudget:    cfg.Prompt.ContextBudget,
		}, nil),
		Compactor: prompts.NewCompactor(provider, logger),
		Quota:     ledger,
		Usage:     a.recorder,
		Turns:     conversations,
		Scorer:    scorer,
	}, streamingOptions(cfg), logger)

	mux := http.NewServeMux()

	checks := map[string]handlers.Checker{
		"database": db.Check,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	handlers.NewHealthHandler(cfg, checks, responseCache.Stats, logger).RegisterRoutes(mux)
	handlers.NewAssistHandler(orchestrator, conversations, logger).RegisterRoutes(mux)
	handlers.NewQualityHandler(scorer, logger).RegisterRoutes(mux)
	handlers.NewUsageHandler(ledger, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("ekaya-drafts", cfg.Version)
	mcptools.RegisterQualityTools(mcpServer.MCP(), scorer)
	mcptools.RegisterQuotaTool(mcpServer.MCP(), ledger)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	var limiter middleware.LimiterStore
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewMemoryLimiterStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	a.handler = middleware.RequestLogger(logger)(middleware.RateLimit(limiter, logger)(mux))

	return a, nil
}

// cacheStore returns the configured response cache backend.
func (a *app) cacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Store != config.CacheStoreRedis {
		return cache.NewMemoryStore(cfg.Cache.TTL), nil
	}
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return cache.NewRedisStore(client, cfg.Cache.KeyPrefix, cfg.Cache.TTL), nil
}

func streamingOptions(cfg *config.Config) streaming.Options {
	s := cfg.Streaming
	return streaming.Options{
		MaxRetries:              s.MaxRetries,
		RetryDelay:              s.RetryDelay,
		Timeout:                 s.Timeout,
		BatchSize:               s.BatchSize,
		ReplayDelay:             s.ReplayDelay,
		UseFallbackModel:        s.UseFallbackModel,
		MinQualityScore:         s.MinQualityScore,
		MaxConcurrentVariations: s.MaxConcurrentVariations,
		Compaction:              cfg.Prompt.Compaction,
	}
}

