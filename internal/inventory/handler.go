package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	reads    singleflight.Group
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createEntry)
	r.Get("/low-stock", h.listLowStock)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", h.getEntry)
		r.Patch("/levels", h.adjustLevels)
		r.Post("/invalidate", h.invalidate)
		r.Get("/movements", h.listMovements)
	})
}

type createEntryRequest struct {
	ProductID    string `json:"product_id" validate:"required,max=64"`
	SKU          string `json:"sku" validate:"omitempty,max=64"`
	Location     string `json:"location" validate:"omitempty,max=128"`
	CurrentStock int    `json:"current_stock" validate:"gte=0"`
	MinLevel     int    `json:"min_level" validate:"gte=0"`
}

type adjustLevelsRequest struct {
	CurrentStock *int `json:"current_stock" validate:"omitempty,gte=0"`
	MinLevel     *int `json:"min_level" validate:"omitempty,gte=0"`
}

type ledgerResponse struct {
	SKU           string    `json:"sku"`
	ProductID     string    `json:"product_id"`
	Location      string    `json:"location,omitempty"`
	CurrentStock  int       `json:"current_stock"`
	ReservedStock int       `json:"reserved_stock"`
	Available     int       `json:"available"`
	MinLevel      int       `json:"min_level"`
	Status        string    `json:"status"`
	LastUpdate    time.Time `json:"last_update"`
}

type movementResponse struct {
	ID            int64     `json:"id"`
	SKU           string    `json:"sku"`
	Quantity      int       `json:"quantity"`
	Direction     string    `json:"direction"`
	ReferenceID   string    `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type movementPage struct {
	Items      []movementResponse `json:"items"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
}

func toLedgerResponse(e LedgerEntry) ledgerResponse {
	return ledgerResponse{
		SKU:           e.SKU,
		ProductID:     e.ProductID,
		Location:      e.Location,
		CurrentStock:  e.CurrentStock,
		ReservedStock: e.ReservedStock,
		Available:     e.Available(),
		MinLevel:      e.MinLevel,
		Status:        string(e.Status),
		LastUpdate:    e.LastUpdate,
	}
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), CreateEntryInput(req))
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "create ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLedgerResponse(entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	// Concurrent reads of one product share a query.
	v, err, _ := h.reads.Do(productID, func() (any, error) {
		return h.service.Get(context.WithoutCancel(r.Context()), productID)
	})
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "get ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(v.(LedgerEntry)))
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListLowStock(r.Context())
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "list low stock", err)
		return
	}
	out := make([]ledgerResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLedgerResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) adjustLevels(w http.ResponseWriter, r *http.Request) {
	var req adjustLevelsRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	entry, err := h.service.AdjustLevels(r.Context(), chi.URLParam(r, "productID"), AdjustLevelsInput(req))
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "adjust ledger levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(entry))
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Invalidate(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "invalidate ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(entry))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	meta := shared.NewPagination(page, perPage, 0)

	items, total, err := h.service.ListMovements(r.Context(), MovementFilter{
		ProductID: chi.URLParam(r, "productID"),
		Limit:     meta.PerPage,
		Offset:    meta.Offset(),
	})
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "list movements", err)
		return
	}
	meta = shared.NewPagination(meta.Page, meta.PerPage, total)
	out := movementPage{
		Items:      make([]movementResponse, 0, len(items)),
		Page:       meta.Page,
		PerPage:    meta.PerPage,
		Total:      meta.Total,
		TotalPages: meta.TotalPages,
	}
	for _, m := range items {
		out.Items = append(out.Items, movementResponse{
			ID:            m.ID,
			SKU:           m.SKU,
			Quantity:      m.Quantity,
			Direction:     string(m.Direction),
			ReferenceID:   m.ReferenceID,
			ReferenceType: string(m.ReferenceType),
			CreatedBy:     m.CreatedBy,
			CreatedAt:     m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
