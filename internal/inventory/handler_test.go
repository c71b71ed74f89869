package inventory_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

func newTestRouter(t *testing.T, entries ...inventory.LedgerEntry) (http.Handler, *inventory.Service) {
	t.Helper()
	svc, _ := newService(t, entries...)
	r := chi.NewRouter()
	r.Route("/inventory", inventory.NewHandler(nil, svc, nil).MountRoutes)
	return r, svc
}

func TestHandlerGetEntry(t *testing.T) {
	router, _ := newTestRouter(t, entry("P-1", 10, 4, 2))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/P-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.EqualValues(t, 6, body["available"])
	require.Equal(t, "IN_STOCK", body["status"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/NOPE", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerCreateEntryValidates(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inventory/", strings.NewReader(`{"product_id":"","min_level":-1}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inventory/", strings.NewReader(`{"product_id":"p-9","current_stock":5,"min_level":1}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/inventory/", strings.NewReader(`{"product_id":"p-9"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerAdjustBelowReservedIsRejected(t *testing.T) {
	router, _ := newTestRouter(t, entry("P-1", 10, 8, 2))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/inventory/P-1/levels", strings.NewReader(`{"current_stock":3}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerListMovementsPagination(t *testing.T) {
	router, svc := newTestRouter(t, entry("P-1", 50, 50, 0))
	for i := 0; i < 3; i++ {
		_, err := svc.Fulfill(t.Context(), inventory.FulfillInput{ProductID: "P-1", Quantity: 2, ReferenceID: "SO-2026-03-02-001", ReferenceType: inventory.ReferenceSalesOrder})
		require.NoError(t, err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/P-1/movements?page=2&per_page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Items      []map[string]any `json:"items"`
		Total      int              `json:"total"`
		TotalPages int              `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Equal(t, 2, body.TotalPages)
	require.Len(t, body.Items, 1)
	require.Equal(t, "OUT", body.Items[0]["direction"])
}
