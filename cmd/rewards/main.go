package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dailydrop/rewards/internal/audit"
	"github.com/dailydrop/rewards/internal/auth"
	"github.com/dailydrop/rewards/internal/membership"
	"github.com/dailydrop/rewards/internal/platform/config"
	"github.com/dailydrop/rewards/internal/platform/database"
	"github.com/dailydrop/rewards/internal/platform/middleware"
	"github.com/dailydrop/rewards/internal/platform/server"
	"github.com/dailydrop/rewards/internal/platform/telemetry"
	"github.com/dailydrop/rewards/internal/rewards"
	"github.com/dailydrop/rewards/internal/telegram"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("rewards api starting",
		"port", cfg.Server.Port,
		"bot_token_configured", cfg.Telegram.BotToken != "",
		"demo_hash_allowed", cfg.Telegram.AllowDemoHash,
	)
	if cfg.Telegram.BotToken == "" {
		slog.Warn("no bot token configured, authenticated routes will reject every request")
	}
	if cfg.Telegram.AllowDemoHash {
		slog.Warn("demo hash accepted, launch payload signatures are not enforced")
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to database (optional, audit trail only)
	var pool *database.Pool
	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database connection failed, starting without audit trail", "error", err)
		} else {
			pool = p
			defer pool.Close()

			migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
			if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations complete")
		}
	}

	// Audit
	var auditLogger audit.Logger = audit.NopLogger{}
	var auditHandler *audit.Handler
	var retention *audit.RetentionWorker
	if pool != nil {
		auditStore := audit.NewStore()
		auditLogger = audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushMs) * time.Millisecond,
		}, logger)
		defer auditLogger.Close()

		auditHandler = audit.NewHandler(pool)
		retention = audit.NewRetentionWorker(pool, auditStore,
			time.Duration(cfg.Audit.RetentionDays)*24*time.Hour,
			time.Duration(cfg.Audit.RetentionMinutes)*time.Minute,
			cfg.Audit.RetentionBatch,
			logger,
		)
		slog.Info("audit logger started", "retention_days", cfg.Audit.RetentionDays)
	} else {
		auditHandler = audit.NewHandler(nil)
	}

	// Telegram
	authn := buildAuthenticator(cfg.Telegram, logger)
	tgClient := telegram.NewClient(telegram.Config{
		BotToken:    cfg.Telegram.BotToken,
		APIBaseURL:  cfg.Telegram.APIBaseURL,
		Timeout:     time.Duration(cfg.Telegram.TimeoutSecs) * time.Second,
		MaxFailures: cfg.Telegram.Breaker.MaxFailures,
		OpenTimeout: time.Duration(cfg.Telegram.Breaker.TimeoutSecs) * time.Second,
	}, nil, logger)
	checker := membership.NewChecker(tgClient, buildChannel(cfg.Channel), logger)

	// Rewards
	sessions := buildSessionService(cfg.Rewards, cfg.Telegram.BotToken)
	var claims rewards.ClaimLedger = rewards.NewMemoryClaimLedger()
	if pool != nil {
		claims = rewards.NewPGClaimLedger(pool)
	}
	rewardsHandler := rewards.NewHandler(authn, checker, sessions, claims, auditLogger, buildRewardsConfig(cfg.Rewards), logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Authenticator:      authn,
		Rewards:            rewardsHandler,
		AuditHandler:       auditHandler,
		RateLimiter:        buildRateLimiter(cfg.RateLimit),
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return retention.Run(gctx)
	})

	slog.Info("server ready", "addr", addr)
	return g.Wait()
}

func buildAuthenticator(cfg config.TelegramConfig, logger *slog.Logger) *auth.Authenticator {
	return auth.NewAuthenticator(auth.AuthenticatorConfig{
		BotToken:      cfg.BotToken,
		AllowDemoHash: cfg.AllowDemoHash,
		EnforceMaxAge: cfg.EnforceMaxAge,
		MaxAge:        time.Duration(cfg.MaxAgeHours) * time.Hour,
	}, logger)
}

func buildChannel(cfg config.ChannelConfig) membership.ChannelConfig {
	return membership.ChannelConfig{
		ID:       cfg.ID,
		Username: cfg.Username,
		URL:      cfg.URL,
		Invite:   cfg.Invite,
	}
}

// buildSessionService signs ad sessions with the configured key, or one
// derived from the bot token when none is set.
func buildSessionService(cfg config.RewardsConfig, botToken string) *auth.SessionService {
	key := []byte(cfg.SessionKey)
	if len(key) == 0 {
		key = auth.DeriveSessionKey(botToken)
	}
	ttl := time.Duration(cfg.SessionTTLMins) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return auth.NewSessionService(key, ttl)
}

func buildRewardsConfig(cfg config.RewardsConfig) rewards.Config {
	return rewards.Config{
		SubscribeAmount: cfg.SubscribeAmount,
		AdAmount:        cfg.AdAmount,
		AdMinWatch:      time.Duration(cfg.AdMinWatchMs) * time.Millisecond,
		AdURL:           cfg.AdURL,
		XProfileURL:     cfg.XProfileURL,
	}
}

func buildRateLimiter(cfg config.RateLimitConfig) *middleware.RateLimiter {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return nil
	}
	return middleware.NewRateLimiter(cfg.RPS, cfg.Burst, cfg.TrustedHops)
}
