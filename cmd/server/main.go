// Package main provides the API server entry point for the gem ledger service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gem-ledger/internal/api"
	"github.com/gem-ledger/internal/audit"
	"github.com/gem-ledger/internal/config"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/membership"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/storage"
	"github.com/gem-ledger/internal/storage/memstore"
)

const settingsCacheTTL = 5 * time.Minute

// backend is the storage wiring selected by STORAGE_DRIVER
type backend struct {
	tx          service.TxManager
	accounts    service.AccountRepository
	tasks       service.TaskRepository
	claims      service.ClaimRepository
	withdrawals service.WithdrawalRepository
	settings    service.SettingsRepository
	cache       service.SettingsCache
	starts      service.TaskStartStore
	events      *audit.MemorySink
	health      func(ctx context.Context) error
	closers     []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func main() {
	fmt.Println("Gem Ledger API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer logger.Sync()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	var b *backend
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; state is lost on restart")
		b = memoryBackend(cfg)
	default:
		b, err = postgresBackend(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize storage")
		}
	}
	defer b.close()

	// Ledger events always go to the log; ClickHouse is optional
	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	var events service.LedgerEventReader
	if b.events != nil {
		sinks = append(sinks, b.events)
		events = b.events
	}
	if cfg.Audit.ClickHouseEnabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		ledgerEvents := storage.NewLedgerEventRepository(clickhouse)
		sinks = append(sinks, audit.NewStoreSink(ledgerEvents))
		events = ledgerEvents
		logger.Info("ClickHouse ledger event sink enabled")
	}

	if cfg.Telegram.BotToken == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set; membership checks will fail")
	}
	telegram := membership.NewTelegramClient(cfg.Telegram)

	// Initialize services
	logger.Info("Initializing services...")
	settingsService := service.NewSettingsService(b.settings, b.cache)
	ledgerService := service.NewLedgerService(b.tx, b.accounts, settingsService, sinks, cfg.Admin)
	taskService := service.NewTaskService(b.tx, b.tasks, b.claims, b.starts, ledgerService, cfg.Rewards.XPDivisor, cfg.Rewards.StartTTL)
	withdrawalService := service.NewWithdrawalService(b.tx, b.withdrawals, ledgerService)
	membershipService := service.NewMembershipService(telegram, ledgerService, settingsService)
	appService := service.NewAppService(ledgerService, settingsService, taskService, withdrawalService)
	historyService := service.NewHistoryService(ledgerService, b.claims, events)

	// Seed default settings on an empty store
	if _, err := settingsService.Get(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to load settings")
	}
	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		UserRPS:         cfg.RateLimit.UserRPS,
		UserBurst:       cfg.RateLimit.UserBurst,
		AdminRPS:        cfg.RateLimit.AdminRPS,
	}

	server := api.NewServer(serverConfig, api.Services{
		Accounts:    ledgerService,
		Tasks:       taskService,
		Withdrawals: withdrawalService,
		Settings:    settingsService,
		Membership:  membershipService,
		App:         appService,
		History:     historyService,
		Health:      b.health,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Driver,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func memoryBackend(cfg *config.Config) *backend {
	store := memstore.New()
	return &backend{
		tx:          store,
		accounts:    store.Accounts(),
		tasks:       store.Tasks(),
		claims:      store.Claims(),
		withdrawals: store.Withdrawals(),
		settings:    store.Settings(),
		starts:      memstore.NewTaskStartStore(cfg.Rewards.StartTTL),
		events:      &audit.MemorySink{},
	}
}

func postgresBackend(cfg *config.Config, logger *logging.Logger) (*backend, error) {
	logger.Info("Running Postgres migrations...")
	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Storage.MigrationsPath); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Database connections established")

	return &backend{
		tx:          postgres,
		accounts:    storage.NewAccountRepository(postgres),
		tasks:       storage.NewTaskRepository(postgres),
		claims:      storage.NewClaimRepository(postgres),
		withdrawals: storage.NewWithdrawalRepository(postgres),
		settings:    storage.NewSettingsRepository(postgres),
		cache:       storage.NewSettingsCache(redis, settingsCacheTTL),
		starts:      storage.NewTaskStartStore(redis, cfg.Rewards.StartTTL),
		health: func(ctx context.Context) error {
			if err := postgres.Ping(ctx); err != nil {
				return err
			}
			return redis.Ping(ctx)
		},
		closers: []func(){
			postgres.Close,
			func() { redis.Close() },
		},
	}, nil
}
