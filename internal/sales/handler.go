package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler manages sales order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.showOrder)
		r.Patch("/", h.updateOrder)
		r.Post("/process", h.processOrder)
		r.Post("/cancel", h.cancelOrder)
	})
}

type orderPage struct {
	Items      []SalesOrder `json:"items"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	meta := shared.NewPagination(page, perPage, 0)

	orders, total, err := h.service.List(r.Context(), ListOrdersFilter{
		Status: Status(q.Get("status")),
		Limit:  meta.PerPage,
		Offset: meta.Offset(),
	})
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "list sales orders", err)
		return
	}
	meta = shared.NewPagination(meta.Page, meta.PerPage, total)
	if orders == nil {
		orders = []SalesOrder{}
	}
	httpx.JSON(w, http.StatusOK, orderPage{Items: orders, Page: meta.Page, PerPage: meta.PerPage, Total: total, TotalPages: meta.TotalPages})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	order, err := h.service.Create(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "get sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	order, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "update sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) processOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ProcessOrderRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	order, err := h.service.Process(r.Context(), id, req)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "process sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "cancel sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sales order id")
		return 0, false
	}
	return id, true
}
