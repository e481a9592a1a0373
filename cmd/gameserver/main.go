// Package main provides the game server binary: the HTTP login gateway and
// the gameplay socket on one listener.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/card"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/server"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment only")
	migrateOnStart := flag.Bool("migrate", false, "apply pending database migrations before serving")
	healthInterval := flag.Duration("db-health", 30*time.Second, "database health check interval")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("tls", cfg.Server.TLSEnabled()),
		zap.Bool("auto_create_accounts", cfg.Auth.AutoCreateAccounts),
	)

	contentStart := time.Now()
	cards, err := card.Load(cfg.Content.CardsFile, cfg.Content.DecksDir)
	if err != nil {
		logger.Fatal("loading card content", zap.Error(err))
	}
	if _, ok := cards.Deck(cfg.Content.StarterDeck); !ok {
		logger.Fatal("starter deck not found", zap.String("deck", cfg.Content.StarterDeck))
	}
	logger.Info("card content loaded",
		zap.Int("templates", cards.TemplateCount()),
		zap.Strings("decks", cards.DeckNames()),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	if *migrateOnStart {
		migrateStart := time.Now()
		if err := postgres.MigrateUp(cfg.Database.DSN()); err != nil {
			logger.Fatal("migrating database", zap.Error(err))
		}
		logger.Info("database migrated", zap.Duration("elapsed", time.Since(migrateStart)))
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	accounts := postgres.NewAccountRepository(pool.DB())
	players := postgres.NewPlayerRepository(pool.DB(), cards, cfg.Content.StarterDeck)
	srv := gameserver.New(cfg, accounts, players, logger)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	// Registered first so it is stopped last, after every player is flushed.
	healthDone := make(chan struct{})
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(*healthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
						continue
					}
					stats := pool.Stats()
					logger.Debug("database healthy",
						zap.Int32("total", stats.Total),
						zap.Int32("idle", stats.Idle),
						zap.Int32("acquired", stats.Acquired),
					)
				case <-healthDone:
					return nil
				}
			}
		},
		StopFn: func(context.Context) error {
			close(healthDone)
			pool.Close()
			return nil
		},
	})
	lifecycle.Add("http", srv)

	logger.Info("game server initialized", zap.Duration("startup", time.Since(start)))

	server.Exit(logger, lifecycle.Run(ctx))
}
