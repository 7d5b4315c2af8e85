package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	cartdto "github.com/partsdepot/cart-service/api/controllers/cart/dto"
	"github.com/partsdepot/cart-service/api/middleware"
	"github.com/partsdepot/cart-service/api/responses"
	"github.com/partsdepot/cart-service/api/validators"
	cartsvc "github.com/partsdepot/cart-service/internal/cart"
	"github.com/partsdepot/cart-service/pkg/config"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
	"github.com/partsdepot/cart-service/pkg/logger"
)

type sessionRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// CartFetch returns the current owner's active cart, creating it if needed.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		record, err := svc.GetCart(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(record))
	})
}

// CartCount reports the number of units in the owner's cart without creating one.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		count, err := svc.ItemCount(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.CartCount{Count: count})
	})
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		partID, err := uuid.Parse(payload.SparePartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid spare part id"))
			return
		}

		record, err := svc.AddItem(r.Context(), owner, partID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCart(record))
	})
}

// CartUpdateItem sets a line's quantity; zero or less removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.UpdateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.UpdateItemQuantity(r.Context(), owner, itemID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(record))
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.RemoveItem(r.Context(), owner, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(record))
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		record, err := svc.ClearCart(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCart(record))
	})
}

// CartSync replaces the cart contents with a client-side snapshot.
func CartSync(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwner(svc, logg, func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner) {
		var payload cartdto.SyncCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := toSyncLines(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SyncCart(r.Context(), owner, lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSyncResponse(result))
	})
}

// SessionLogin folds the guest session's cart into the signed-in user's cart
// and retires the guest session.
func SessionLogin(svc cartsvc.Service, sessions sessionRevoker, cfg config.GuestSessionConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "guest session required"))
			return
		}

		record, err := svc.MergeGuestCartWithUserCart(r.Context(), sessionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if sessions != nil {
			if err := sessions.Revoke(r.Context(), sessionID); err != nil && logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "guest_session.revoke_failed")
			}
		}
		middleware.ExpireGuestSession(w, cfg)

		responses.WriteSuccess(w, newCart(record))
	}
}

// SessionLogout deactivates every active cart of the signed-in user.
func SessionLogout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		count, err := svc.DeactivateCartsForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.LogoutResponse{Deactivated: count})
	}
}

type ownerHandler func(w http.ResponseWriter, r *http.Request, owner cartsvc.Owner)

func withOwner(svc cartsvc.Service, logg *logger.Logger, next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next(w, r, owner)
	}
}
