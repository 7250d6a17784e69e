package analytics

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/farmfresh/marketplace-backend/api/middleware"
	"github.com/farmfresh/marketplace-backend/api/responses"
	"github.com/farmfresh/marketplace-backend/api/validators"
	"github.com/farmfresh/marketplace-backend/internal/analytics"
	"github.com/farmfresh/marketplace-backend/pkg/auth"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

// Reports serves the admin analytics endpoints.
type Reports struct {
	svc         analytics.Service
	loc         *time.Location
	defaultDays int
	logg        *logger.Logger
}

// NewReports binds the handlers to the analytics service. Dates in query
// strings are read in loc.
func NewReports(svc analytics.Service, loc *time.Location, defaultDays int, logg *logger.Logger) *Reports {
	if loc == nil {
		loc = time.UTC
	}
	if defaultDays <= 0 {
		defaultDays = analytics.DefaultWindowDays
	}
	return &Reports{svc: svc, loc: loc, defaultDays: defaultDays, logg: logg}
}

func (h *Reports) Overview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	days, err := windowDays(r, h.defaultDays)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	overview, err := h.svc.Overview(r.Context(), actor, days)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, overview)
}

func (h *Reports) TopProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	days, err := windowDays(r, h.defaultDays)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	limit, err := validators.ParseQueryInt(r, "limit", analytics.DefaultTopProductLimit, 1, analytics.MaxTopProductLimit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	products, err := h.svc.TopProducts(r.Context(), actor, days, limit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, products)
}

func (h *Reports) ProductPerformance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	start, end, err := reportRange(r, h.loc)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	if start == nil || end == nil {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeMissingRange, "start and end dates are required"))
		return
	}
	products, err := h.svc.ProductPerformance(r.Context(), actor, *start, *end)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, products)
}

// ExportCSV renders the report into memory first so a failure still yields
// a JSON error instead of a truncated attachment.
func (h *Reports) ExportCSV(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	start, end, err := reportRange(r, h.loc)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	var buf bytes.Buffer
	filename, err := h.svc.ExportSalesCSV(r.Context(), actor, start, end, &buf)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Reports) LowStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	products, err := h.svc.LowStockProducts(r.Context(), actor, limit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, products)
}

func (h *Reports) OutOfStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	products, err := h.svc.OutOfStockProducts(r.Context(), actor, limit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, products)
}

func (h *Reports) caller(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	if h == nil || h.svc == nil {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
		return auth.Actor{}, false
	}
	actor := middleware.ActorFromContext(r.Context())
	if !actor.Valid() {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}
