// Package app assembles the services shared by the server and cronjob binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"staybook-backend/internal/config"
	"staybook-backend/internal/gateway"
	"staybook-backend/internal/idempotency"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/queue"
	"staybook-backend/internal/repository/postgres"
	"staybook-backend/internal/service"
)

// App holds the wired services and the connections they depend on
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Store     *postgres.Store
	Publisher *queue.Publisher

	Bookings service.BookingService
	Payments service.PaymentService
	Escrow   service.EscrowService
	Refunds  service.RefundProcessor

	closers []func() error
}

// Policy converts the booking config section into service rules
func Policy(cfg config.BookingConfig) service.Policy {
	return service.Policy{
		Currency:          cfg.Currency,
		DepositPercent:    cfg.DepositPercent,
		PendingExpiry:     time.Duration(cfg.PendingExpiryMinutes) * time.Minute,
		ModifyCutoffHours: cfg.ModifyCutoffHours,
	}
}

// Gateways registers an adapter for every gateway that has credentials
func Gateways(cfg config.GatewaysConfig) (*gateway.Registry, error) {
	var adapters []gateway.Adapter

	if cfg.Stripe.SecretKey != "" {
		adapters = append(adapters, gateway.NewStripeAdapter(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret))
	}
	if cfg.PayPal.ClientID != "" {
		pp, err := gateway.NewPayPalAdapter(cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.BaseURL,
			cfg.PayPal.WebhookID, cfg.PayPal.ReturnURL, cfg.PayPal.CancelURL)
		if err != nil {
			return nil, fmt.Errorf("paypal: %w", err)
		}
		adapters = append(adapters, pp)
	}
	if cfg.Bakong.AccountID != "" {
		adapters = append(adapters, gateway.NewBakongAdapter(gateway.BakongConfig{
			BaseURL:       cfg.Bakong.BaseURL,
			Token:         cfg.Bakong.Token,
			AccountID:     cfg.Bakong.AccountID,
			MerchantName:  cfg.Bakong.MerchantName,
			MerchantCity:  cfg.Bakong.MerchantCity,
			WebhookSecret: cfg.Bakong.WebhookSecret,
			Poll: gateway.PollConfig{
				Interval:    time.Duration(cfg.Bakong.PollIntervalSeconds) * time.Second,
				MaxAttempts: cfg.Bakong.PollMaxAttempts,
			},
		}, nil))
	}

	for _, a := range adapters {
		logger.Info("Payment gateway configured", "gateway", a.Name())
	}
	if len(adapters) == 0 {
		logger.Warn("No payment gateway configured")
	}
	return gateway.NewRegistry(adapters...), nil
}

// New opens the database and wires every service. Redis, RabbitMQ and
// Google Calendar are optional; missing ones degrade to the database-only path.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
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

	a := &App{Config: cfg, DB: db, Store: postgres.NewStore(db)}
	a.closers = append(a.closers, db.Close)

	registry, err := Gateways(cfg.Gateways)
	if err != nil {
		a.Close()
		return nil, err
	}

	// A nil *Publisher must not become a non-nil interface value
	var events service.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		pub, err := queue.NewPublisher(cfg.RabbitMQ)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, refunds run inline", "error", err)
		} else {
			a.Publisher = pub
			events = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	var claims service.WebhookClaimer
	if rdb := idempotency.NewRedisClient(cfg.Redis); rdb != nil {
		claims = idempotency.NewRedisClaimer(rdb, time.Duration(cfg.Redis.ClaimTTLMinutes)*time.Minute)
		a.closers = append(a.closers, rdb.Close)
	}

	cal, err := service.NewGoogleCalendar(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID)
	if err != nil {
		logger.Warn("Calendar sync disabled", "error", err)
		cal = nil
	}

	notifier := service.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
	policy := Policy(cfg.Booking)

	a.Refunds = service.NewRefundProcessor(a.Store.BookingRepository, a.Store.TransactionRepository, registry, notifier, events, policy)
	a.Bookings = service.NewBookingService(
		a.Store.RoomRepository,
		a.Store.BookingRepository,
		a.Store.TransactionRepository,
		service.NewPromoService(a.Store.PromoRepository),
		notifier,
		cal,
		events,
		policy,
	)
	a.Payments = service.NewPaymentService(a.Store.BookingRepository, a.Store.TransactionRepository, registry, claims, notifier, events, policy)
	a.Escrow = service.NewEscrowService(
		a.Store.BookingRepository,
		a.Store.TransactionRepository,
		a.Store.PromoRepository,
		a.Refunds,
		notifier,
		events,
		policy,
	)
	return a, nil
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}
}
