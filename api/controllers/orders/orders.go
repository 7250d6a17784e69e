package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farmfresh/marketplace-backend/api/middleware"
	"github.com/farmfresh/marketplace-backend/api/responses"
	"github.com/farmfresh/marketplace-backend/api/validators"
	internalorders "github.com/farmfresh/marketplace-backend/internal/orders"
	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

const maxSearchLength = 200

// CheckoutRequest is the body of POST /orders.
type CheckoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

// StatusRequest is the body of the admin status transition.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Checkout converts the caller's cart into a pending order.
func Checkout(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := caller(w, r, svc, logg)
		if !ok {
			return
		}
		var payload CheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateFromCart(r.Context(), actor, payload.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ListMine pages through the caller's own orders, newest first.
func ListMine(svc internalorders.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := caller(w, r, svc, logg)
		if !ok {
			return
		}
		filters, params, err := parseListQuery(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID := actor.UserID
		filters.UserID = &userID

		list, err := svc.ListOrders(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its lines. Customers only see their own.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := caller(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminList searches every order by status, customer text and date range.
func AdminList(svc internalorders.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := caller(w, r, svc, logg)
		if !ok {
			return
		}
		filters, params, err := parseListQuery(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminSetStatus moves an order along its lifecycle.
func AdminSetStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := caller(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload StatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SetStatus(r.Context(), actor, orderID, payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func parseListQuery(r *http.Request, loc *time.Location) (internalorders.OrderFilters, pagination.Params, error) {
	var filters internalorders.OrderFilters
	query := r.URL.Query()

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filters, pagination.Params{}, err
	}
	params := pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, params, pkgerrors.New(pkgerrors.CodeInvalidStatus, "invalid order status").
				WithDetails(map[string]any{"status": raw, "allowed": enums.OrderStatuses()})
		}
		filters.Status = &status
	}

	filters.Query = validators.SanitizeString(query.Get("q"), maxSearchLength)

	from, err := internalorders.ParseDateBound(query.Get("from"), false, loc)
	if err != nil {
		return filters, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from date").
			WithDetails(map[string]any{"field": "from"})
	}
	to, err := internalorders.ParseDateBound(query.Get("to"), true, loc)
	if err != nil {
		return filters, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to date").
			WithDetails(map[string]any{"field": "to"})
	}
	filters.DateFrom = from
	filters.DateTo = to

	return filters, params, nil
}

func caller(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (auth.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return auth.Actor{}, false
	}
	actor := middleware.ActorFromContext(r.Context())
	if !actor.Valid() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}
