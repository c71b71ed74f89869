package procurement

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/internal/view"
)

// Result kinds understood by the supplier result template.
const (
	ResultSuccess = "success"
	ResultInfo    = "info"
	ResultError   = "error"
)

const (
	msgLinkUnusable  = "Email link is expired or already processed."
	msgAlreadyDone   = "This order has already been processed by someone else."
	msgBadArrival    = "Please choose an expected arrival date from today onwards."
	msgInvalidForm   = "The form could not be read. Please open the link from your email again."
	msgUnexpected    = "Something went wrong on our side. Please try again later."
	supplierPageName = "Purchase order confirmation"
)

// PageHandler serves the pages suppliers reach from the confirmation email.
// Links are unauthenticated, so every route is rate limited per client IP.
type PageHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	validate  *validator.Validate
	perMinute int
}

// NewPageHandler builds PageHandler. perMinute <= 0 disables rate limiting.
func NewPageHandler(logger *slog.Logger, service *Service, templates *view.Engine, validate *validator.Validate, perMinute int) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PageHandler{logger: logger, service: service, templates: templates, validate: validate, perMinute: perMinute}
}

// MountRoutes registers supplier link routes. GET never changes state.
func (h *PageHandler) MountRoutes(r chi.Router) {
	if h.perMinute > 0 {
		r.Use(httprate.LimitByIP(h.perMinute, time.Minute))
	}
	r.Get("/confirm", h.showDecision)
	r.Get("/cancel", h.showDecision)
	r.Post("/confirm", h.confirm)
	r.Post("/cancel", h.decline)
}

type linkQuery struct {
	Token string `validate:"required,uuid4"`
}

type confirmForm struct {
	Token               string `validate:"required,uuid4"`
	ExpectedArrivalDate string `validate:"required,datetime=2006-01-02"`
}

type decisionPage struct {
	View          LinkView
	Token         string
	MinDate       string
	ConfirmAction string
	CancelAction  string
}

type resultPage struct {
	Message string
	Kind    string
}

func (h *PageHandler) showDecision(w http.ResponseWriter, r *http.Request) {
	q := linkQuery{Token: r.URL.Query().Get("token")}
	if err := h.validate.Struct(q); err != nil {
		h.RenderResultPage(w, http.StatusNotFound, msgLinkUnusable, ResultError)
		return
	}
	linkView, err := h.service.InspectLink(r.Context(), q.Token)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.render(w, http.StatusOK, "supplier_confirm.html", decisionPage{
		View:          linkView,
		Token:         q.Token,
		MinDate:       shared.StartOfDay(h.service.clock.Now()).Format(time.DateOnly),
		ConfirmAction: "confirm",
		CancelAction:  "cancel",
	})
}

func (h *PageHandler) confirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderResultPage(w, http.StatusBadRequest, msgInvalidForm, ResultError)
		return
	}
	form := confirmForm{
		Token:               r.PostFormValue("token"),
		ExpectedArrivalDate: r.PostFormValue("expected_arrival_date"),
	}
	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "ExpectedArrivalDate" {
			h.RenderResultPage(w, http.StatusBadRequest, msgBadArrival, ResultError)
			return
		}
		h.RenderResultPage(w, http.StatusNotFound, msgLinkUnusable, ResultError)
		return
	}
	arrival, _ := time.Parse(time.DateOnly, form.ExpectedArrivalDate)
	po, err := h.service.ConfirmBySupplier(r.Context(), form.Token, arrival)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.RenderResultPage(w, http.StatusOK,
		fmt.Sprintf("Thank you. Purchase order %s is confirmed for delivery on %s.", po.PONumber, arrival.Format("02 Jan 2006")),
		ResultSuccess)
}

func (h *PageHandler) decline(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.RenderResultPage(w, http.StatusBadRequest, msgInvalidForm, ResultError)
		return
	}
	q := linkQuery{Token: r.PostFormValue("token")}
	if err := h.validate.Struct(q); err != nil {
		h.RenderResultPage(w, http.StatusNotFound, msgLinkUnusable, ResultError)
		return
	}
	po, err := h.service.CancelBySupplier(r.Context(), q.Token)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.RenderResultPage(w, http.StatusOK, fmt.Sprintf("Purchase order %s has been declined.", po.PONumber), ResultInfo)
}

// RenderResultPage shows the outcome of a supplier action.
func (h *PageHandler) RenderResultPage(w http.ResponseWriter, status int, message, kind string) {
	h.render(w, status, "supplier_result.html", resultPage{Message: message, Kind: kind})
}

func (h *PageHandler) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLinkUnusable), errors.Is(err, shared.ErrNotFound):
		h.RenderResultPage(w, http.StatusNotFound, msgLinkUnusable, ResultError)
	case errors.Is(err, ErrAlreadyDecided), errors.Is(err, shared.ErrConcurrencyConflict):
		h.RenderResultPage(w, http.StatusConflict, msgAlreadyDone, ResultInfo)
	case errors.Is(err, ErrArrivalDate):
		h.RenderResultPage(w, http.StatusBadRequest, msgBadArrival, ResultError)
	case errors.Is(err, shared.ErrValidation):
		h.RenderResultPage(w, http.StatusBadRequest, msgInvalidForm, ResultError)
	default:
		h.logger.Error("supplier link", slog.Any("error", err))
		h.RenderResultPage(w, http.StatusInternalServerError, msgUnexpected, ResultError)
	}
}

func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data any) {
	if err := h.templates.Render(w, status, name, view.TemplateData{Title: supplierPageName, Data: data}); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
