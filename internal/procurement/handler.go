package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler manages purchase order endpoints.
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

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPOs)
	r.Post("/", h.createPO)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.showPO)
		r.Post("/receive", h.receivePO)
		r.Post("/cancel", h.cancelPO)
	})
}

type poPage struct {
	Items      []PurchaseOrder `json:"items"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	meta := shared.NewPagination(page, perPage, 0)

	orders, total, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(q.Get("status")),
		SupplierID: supplierID,
		Limit:      meta.PerPage,
		Offset:     meta.Offset(),
	})
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "list purchase orders", err)
		return
	}
	meta = shared.NewPagination(meta.Page, meta.PerPage, total)
	if orders == nil {
		orders = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, poPage{Items: orders, Page: meta.Page, PerPage: meta.PerPage, Total: total, TotalPages: meta.TotalPages})
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderInput
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	po, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) showPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poID(w, r)
	if !ok {
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receivePO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poID(w, r)
	if !ok {
		return
	}
	var req ReceiveInput
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	po, err := h.service.Receive(r.Context(), id, req)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "receive purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poID(w, r)
	if !ok {
		return
	}
	po, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondLoggedError(w, h.logger, "cancel purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) poID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return 0, false
	}
	return id, true
}
