package cart

import (
	"net/http"

	"github.com/google/uuid"

	cartdto "github.com/partsdepot/cart-service/api/controllers/cart/dto"
	"github.com/partsdepot/cart-service/api/middleware"
	cartsvc "github.com/partsdepot/cart-service/internal/cart"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
)

// ownerFromRequest resolves the current cart owner: the authenticated user
// when present, otherwise the guest session.
func ownerFromRequest(r *http.Request) (cartsvc.Owner, error) {
	if r == nil {
		return cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner missing")
	}
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return cartsvc.Owner{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		return cartsvc.UserOwner(userID), nil
	}
	if session := middleware.SessionIDFromContext(r.Context()); session != "" {
		return cartsvc.SessionOwner(session), nil
	}
	return cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner missing")
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func toSyncLines(payload cartdto.SyncCartRequest) ([]cartsvc.SyncLine, error) {
	lines := make([]cartsvc.SyncLine, 0, len(payload.Items))
	for _, item := range payload.Items {
		id, err := uuid.Parse(item.SparePartID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid spare part id")
		}
		lines = append(lines, cartsvc.SyncLine{SparePartID: id, Quantity: item.Quantity})
	}
	return lines, nil
}
