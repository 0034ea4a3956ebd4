// Package app assembles the ledger from configuration. The server, cronjob
// and dispatcher binaries share it so they agree on providers and services.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	_ "github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/billing/ledgerly"
	"practice-ledger/internal/billing/selfissued"
	"practice-ledger/internal/billing/tillpoint"
	"practice-ledger/internal/cache"
	"practice-ledger/internal/config"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository/postgres"
	"practice-ledger/internal/service"
	"practice-ledger/internal/storage"
)

// Services is everything the API and the jobs call into.
type Services struct {
	Credit        service.CreditService
	Receipts      service.ReceiptService
	Ledger        service.LedgerService
	Webhooks      service.WebhookService
	Notifications service.NotificationService
}

// OpenDatabase connects and pings PostgreSQL.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")
	return db, nil
}

// NewTokenCache prefers Redis so every process shares provider tokens, and
// falls back to memory when Redis is absent or unreachable.
func NewTokenCache(ctx context.Context, cfg config.RedisConfig) cache.TokenCache {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, caching provider tokens in memory")
		return cache.NewMemoryCache()
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		logger.Warn("Redis unavailable, caching provider tokens in memory", "addr", cfg.Addr, "error", err)
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(rdb, "ledger:provider-token:")
}

// NewProviderRegistry registers a factory per billing provider. External
// providers share one HTTP client bounded by the provider timeout.
func NewProviderRegistry(cfg *config.Config, store *postgres.Store, docs storage.DocumentStore, tokens cache.TokenCache) *billing.Registry {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout()}
	refreshes := &singleflight.Group{}

	registry := billing.NewRegistry()
	registry.Register(domain.BillingProviderSelf, func(account *domain.Account) (billing.Provider, error) {
		return selfissued.New(account, store.AccountRepository, store.TxManager, docs), nil
	})
	registry.Register(domain.BillingProviderLedgerly, func(account *domain.Account) (billing.Provider, error) {
		if account.ProviderAPIKey == "" || account.ProviderAPISecret == "" {
			return nil, fmt.Errorf("account %d has no ledgerly credentials", account.ID)
		}
		client := ledgerly.NewClient(cfg.Billing.Ledgerly.BaseURL, account.ProviderAPIKey, account.ProviderAPISecret, httpClient, tokens, refreshes)
		return billing.NewDocumentProvider(domain.BillingProviderLedgerly, client), nil
	})
	registry.Register(domain.BillingProviderTillpoint, func(account *domain.Account) (billing.Provider, error) {
		if account.ProviderAPIKey == "" || account.ProviderCompanyID == "" {
			return nil, fmt.Errorf("account %d has no tillpoint credentials", account.ID)
		}
		client := tillpoint.NewClient(cfg.Billing.Tillpoint.BaseURL, account.ProviderAPIKey, account.ProviderCompanyID, httpClient)
		return billing.NewDocumentProvider(domain.BillingProviderTillpoint, client), nil
	})
	return registry
}

// NewDocumentStore builds the receipt document store from cfg.Storage.
func NewDocumentStore(cfg *config.Config) (storage.DocumentStore, error) {
	return storage.New(storage.Config{
		Type:    cfg.Storage.Type,
		Dir:     cfg.Storage.ReceiptDir,
		BaseURL: cfg.Storage.BaseURL,
	})
}

// NewServices wires the ledger services over store and publisher.
func NewServices(cfg *config.Config, store *postgres.Store, providers service.ProviderSelector, publisher events.Publisher) *Services {
	credit := service.NewCreditService(store.ClientRepository)
	receipts := service.NewReceiptService(
		store.TxManager,
		store.AccountRepository,
		store.ClientRepository,
		store.SessionRepository,
		store.PaymentRepository,
		providers,
		publisher,
		cfg.ProviderTimeout(),
	)
	ledger := service.NewLedgerService(
		store.TxManager,
		store.ClientRepository,
		store.SessionRepository,
		store.PaymentRepository,
		credit,
		receipts,
	)
	webhooks := service.NewWebhookService(
		cfg.Billing.WebhookSecret,
		cfg.Billing.WebhookProvider,
		store.TxManager,
		store.AccountRepository,
		store.PaymentRepository,
		store.WebhookEventRepository,
		receipts,
		publisher,
	)
	return &Services{
		Credit:        credit,
		Receipts:      receipts,
		Ledger:        ledger,
		Webhooks:      webhooks,
		Notifications: service.NewNotificationService(store.NotificationRepository),
	}
}

// NewDispatcher consumes bus events: email and in-app notifications.
func NewDispatcher(cfg *config.Config, store *postgres.Store) *service.Dispatcher {
	return service.NewDispatcher(service.NewEmailSender(cfg.Email), store.NotificationRepository, store.CommunicationLogRepository)
}
