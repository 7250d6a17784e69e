package wishlist

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/api/middleware"
	"github.com/farmfresh/marketplace-backend/api/responses"
	"github.com/farmfresh/marketplace-backend/api/validators"
	cartsvc "github.com/farmfresh/marketplace-backend/internal/cart"
	wishlistsvc "github.com/farmfresh/marketplace-backend/internal/wishlist"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

const defaultMoveQuantity = 1

// AddItemRequest is the body of POST /wishlist/items.
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
}

// MoveToCartRequest is the optional body of the move-to-cart action.
type MoveToCartRequest struct {
	Quantity *int `json:"quantity"`
}

// List pages through the caller's saved products, newest first.
func List(svc wishlistsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, svc, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListWishlist(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AddItem saves a product; saving it twice is a DUPLICATE_ENTRY conflict.
func AddItem(svc wishlistsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, svc, logg)
		if !ok {
			return
		}
		var payload AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(payload.ProductID, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.AddToWishlist(r.Context(), userID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// RemoveItem deletes a saved product. With ?strict=true a missing entry is a 404.
func RemoveItem(svc wishlistsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, svc, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseUUIDParam(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		strict, err := validators.ParseQueryBool(r, "strict")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveFromWishlist(r.Context(), userID, productID, strict); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Clear(svc wishlistsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, svc, logg)
		if !ok {
			return
		}
		removed, err := svc.ClearWishlist(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"removed": removed})
	}
}

// MoveToCart promotes a saved product into the cart. An empty body moves a
// single unit.
func MoveToCart(svc wishlistsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r, svc, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseUUIDParam(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quantity := defaultMoveQuantity
		if r.ContentLength != 0 {
			var payload MoveToCartRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.Quantity != nil {
				quantity = *payload.Quantity
			}
		}

		result, err := svc.MoveToCart(r.Context(), userID, productID, quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Status == cartsvc.AddStatusCreated {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func callerID(w http.ResponseWriter, r *http.Request, svc wishlistsvc.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wishlist service unavailable"))
		return uuid.Nil, false
	}
	actor := middleware.ActorFromContext(r.Context())
	if !actor.Valid() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return uuid.Nil, false
	}
	return actor.UserID, true
}
