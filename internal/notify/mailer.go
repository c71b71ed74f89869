// Package notify renders outbound mail and hands it to the job queue. Sending
// happens in the worker so request paths never wait on SMTP.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/stockflow/internal/catalog"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/procurement"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/internal/view"
	"github.com/odyssey-erp/stockflow/jobs"
)

const (
	confirmationTemplate = "po_confirmation.html"
	lowStockTemplate     = "low_stock.html"

	supplierPagePath = "/supplier/purchase-orders/"
)

// Queue accepts rendered mail.
type Queue interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Options configures a Mailer.
type Options struct {
	// BaseURL is the public origin suppliers reach the confirmation pages on.
	BaseURL string
	// LowStockRecipient receives the daily digest. Empty disables it.
	LowStockRecipient string
	Language          language.Tag
	Clock             shared.Clock
	Logger            *slog.Logger
}

// Mailer implements procurement.Notifier and the low stock notifiers used by
// sales and the daily digest job.
type Mailer struct {
	queue     Queue
	templates *view.Engine
	baseURL   string
	lowStock  string
	printer   *message.Printer
	clock     shared.Clock
	logger    *slog.Logger
}

// NewMailer validates the base URL and builds a Mailer.
func NewMailer(queue Queue, templates *view.Engine, opts Options) (*Mailer, error) {
	if queue == nil || templates == nil {
		return nil, errors.New("notify: queue and templates are required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("notify: invalid base url %q", opts.BaseURL)
	}
	lang := opts.Language
	if lang == language.Und {
		lang = language.English
	}
	clock := opts.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		queue:     queue,
		templates: templates,
		baseURL:   strings.TrimRight(base.String(), "/"),
		lowStock:  opts.LowStockRecipient,
		printer:   message.NewPrinter(lang),
		clock:     clock,
		logger:    logger,
	}, nil
}

type confirmationMail struct {
	Order      procurement.PurchaseOrder
	Product    catalog.Product
	Supplier   catalog.Supplier
	ConfirmURL string
	CancelURL  string
	ExpiresAt  time.Time
}

// SendConfirmationEmail queues the accept/decline mail for a new order.
func (m *Mailer) SendConfirmationEmail(ctx context.Context, email procurement.ConfirmationEmail) error {
	if email.Supplier.Email == "" {
		return fmt.Errorf("notify: supplier %d has no email address", email.Supplier.ID)
	}
	var body bytes.Buffer
	err := m.templates.Execute(&body, confirmationTemplate, confirmationMail{
		Order:      email.Order,
		Product:    email.Product,
		Supplier:   email.Supplier,
		ConfirmURL: m.link("confirm", email.Token),
		CancelURL:  m.link("cancel", email.Token),
		ExpiresAt:  email.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("notify: render confirmation: %w", err)
	}
	subject := m.printer.Sprintf("Purchase order %s: %d x %s", email.Order.PONumber, email.Order.OrderedQuantity, email.Product.Name)
	info, err := m.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email.Supplier.Email,
		Subject: subject,
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: enqueue confirmation: %w", err)
	}
	m.logger.InfoContext(ctx, "confirmation email queued",
		slog.String("po_number", email.Order.PONumber),
		slog.Int64("supplier_id", email.Supplier.ID),
		slog.String("task_id", taskID(info)))
	return nil
}

type lowStockMail struct {
	GeneratedAt time.Time
	Entries     []inventory.LedgerEntry
}

// NotifyLowStock queues a digest of entries at or below their minimum level.
func (m *Mailer) NotifyLowStock(ctx context.Context, entries []inventory.LedgerEntry) error {
	if m.lowStock == "" || len(entries) == 0 {
		return nil
	}
	var body bytes.Buffer
	if err := m.templates.Execute(&body, lowStockTemplate, lowStockMail{GeneratedAt: m.clock.Now(), Entries: entries}); err != nil {
		return fmt.Errorf("notify: render low stock: %w", err)
	}
	info, err := m.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      m.lowStock,
		Subject: m.printer.Sprintf("Low stock: %d products", len(entries)),
		Body:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: enqueue low stock: %w", err)
	}
	m.logger.InfoContext(ctx, "low stock email queued", slog.Int("entries", len(entries)), slog.String("task_id", taskID(info)))
	return nil
}

func (m *Mailer) link(action, token string) string {
	return m.baseURL + supplierPagePath + action + "?token=" + url.QueryEscape(token)
}

func taskID(info *asynq.TaskInfo) string {
	if info == nil {
		return ""
	}
	return info.ID
}
