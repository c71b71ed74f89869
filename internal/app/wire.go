package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/stockflow/internal/confirmation"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/notify"
	"github.com/odyssey-erp/stockflow/internal/procurement"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/internal/view"
)

// Services holds the domain services shared by the binaries.
type Services struct {
	Templates   *view.Engine
	Mailer      *notify.Mailer
	Inventory   *inventory.Service
	Sales       *sales.Service
	Procurement *procurement.Service
}

// ServiceDeps are the infrastructure pieces BuildServices wires together.
type ServiceDeps struct {
	Config   *Config
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Queue    notify.Queue
	Observer inventory.ReservationObserver
	Clock    shared.Clock
}

// BuildServices constructs repositories and services over one pool. All
// services share a single reservation manager.
func BuildServices(deps ServiceDeps) (*Services, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang, err := language.Parse(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("app: APP_LANGUAGE: %w", err)
	}

	templates, err := view.NewEngine(lang)
	if err != nil {
		return nil, fmt.Errorf("app: parse templates: %w", err)
	}
	mailer, err := notify.NewMailer(deps.Queue, templates, notify.Options{
		BaseURL:           cfg.PublicBaseURL,
		LowStockRecipient: cfg.LowStockAlertRecipient,
		Language:          lang,
		Clock:             clock,
		Logger:            logger.With(slog.String("component", "notify")),
	})
	if err != nil {
		return nil, err
	}

	auditLogger := shared.NewAuditLogger(deps.Pool)
	idempotency := shared.NewIdempotencyStore(deps.Pool)
	stock := inventory.NewManager(clock, logger.With(slog.String("component", "inventory")), deps.Observer)

	inventoryService := inventory.NewService(inventory.NewRepository(deps.Pool), stock, auditLogger, logger)
	salesService := sales.NewService(sales.NewRepository(deps.Pool), stock, sales.Options{
		Clock:        clock,
		Logger:       logger.With(slog.String("component", "sales")),
		Audit:        auditLogger,
		Alerts:       mailer,
		Idempotency:  idempotency,
		DeliveryLead: cfg.SalesDeliveryLead,
	})
	procurementService := procurement.NewService(
		procurement.NewRepository(deps.Pool),
		stock,
		confirmation.NewService(clock, cfg.ConfirmationTokenTTL),
		procurement.Options{
			Clock:    clock,
			Logger:   logger.With(slog.String("component", "procurement")),
			Audit:    auditLogger,
			Notifier: mailer,
		},
	)

	return &Services{
		Templates:   templates,
		Mailer:      mailer,
		Inventory:   inventoryService,
		Sales:       salesService,
		Procurement: procurementService,
	}, nil
}
