// Package api serves the read-only query API over the warehouse.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl/transform"
	"github.com/sells-group/ans-cli/internal/warehouse"
)

// Pagination bounds for the company listing.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Store is the warehouse surface the API reads from.
type Store interface {
	warehouse.Reader
	Ping(ctx context.Context) error
}

// Handler wires the query endpoints to the warehouse.
type Handler struct {
	store Store
	log   *zap.Logger
}

// New constructs a Handler over store.
func New(store Store) *Handler {
	return &Handler{
		store: store,
		log:   zap.L().With(zap.String("component", "api")),
	}
}

// Register mounts the query endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/operadoras", h.HandleListCompanies)
		r.Get("/operadoras/{cnpj}", h.HandleGetCompany)
		r.Get("/operadoras/{cnpj}/despesas", h.HandleListExpenses)
		r.Get("/estatisticas", h.HandleListAggregates)
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListCompanies handles GET /api/operadoras?page&size&search.
func (h *Handler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeDetail(w, http.StatusBadRequest, "page must be an integer >= 1")
		return
	}
	size, err := intParam(q.Get("size"), DefaultPageSize)
	if err != nil || size < 1 || size > MaxPageSize {
		writeDetail(w, http.StatusBadRequest, "size must be an integer between 1 and 100")
		return
	}

	companies, total, err := h.store.ListCompanies(r.Context(), warehouse.CompanyFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		h.internalError(w, "list companies", err)
		return
	}

	resp := CompanyList{
		Data: make([]CompanyResponse, 0, len(companies)),
		Meta: NewPageMeta(page, size, total),
	}
	for _, c := range companies {
		resp.Data = append(resp.Data, FromCompany(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetCompany handles GET /api/operadoras/{cnpj}.
func (h *Handler) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	cnpj := cnpjParam(r)
	if cnpj == "" {
		writeDetail(w, http.StatusNotFound, "Company not found")
		return
	}

	company, err := h.store.GetCompany(r.Context(), cnpj)
	if errors.Is(err, warehouse.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Company not found")
		return
	}
	if err != nil {
		h.internalError(w, "get company", err)
		return
	}
	writeJSON(w, http.StatusOK, FromCompany(*company))
}

// HandleListExpenses handles GET /api/operadoras/{cnpj}/despesas. An unknown
// CNPJ and a company without expenses both answer 404.
func (h *Handler) HandleListExpenses(w http.ResponseWriter, r *http.Request) {
	cnpj := cnpjParam(r)
	if cnpj == "" {
		writeDetail(w, http.StatusNotFound, "Expenses not found or invalid CNPJ")
		return
	}

	expenses, err := h.store.ListExpenses(r.Context(), cnpj)
	if err != nil {
		h.internalError(w, "list expenses", err)
		return
	}
	if len(expenses) == 0 {
		writeDetail(w, http.StatusNotFound, "Expenses not found or invalid CNPJ")
		return
	}

	resp := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, FromExpense(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListAggregates handles GET /api/estatisticas.
func (h *Handler) HandleListAggregates(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.ListAggregates(r.Context())
	if err != nil {
		h.internalError(w, "list aggregates", err)
		return
	}

	resp := make([]AggregateResponse, 0, len(stats))
	for _, s := range stats {
		resp = append(resp, FromAggregate(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error("query failed", zap.String("op", op), zap.Error(err))
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// cnpjParam returns the normalized {cnpj} path parameter. Formatted CNPJs
// arrive with an escaped slash.
func cnpjParam(r *http.Request) string {
	raw := chi.URLParam(r, "cnpj")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return transform.NormalizeCNPJ(raw)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}
