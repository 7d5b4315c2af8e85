package cart

import (
	"strings"

	"github.com/google/uuid"

	"github.com/partsdepot/cart-service/pkg/enums"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
)

const maxSessionIDLength = 255

// Owner identifies whose cart an operation touches: a guest session or an
// authenticated user, never both.
type Owner struct {
	UserID    uuid.UUID
	SessionID string
}

// SessionOwner returns the owner for an anonymous visitor.
func SessionOwner(sessionID string) Owner {
	return Owner{SessionID: strings.TrimSpace(sessionID)}
}

// UserOwner returns the owner for an authenticated user.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: userID}
}

func (o Owner) IsUser() bool {
	return o.UserID != uuid.Nil
}

func (o Owner) Kind() enums.CartOwnerKind {
	if o.IsUser() {
		return enums.CartOwnerUser
	}
	return enums.CartOwnerGuest
}

// Validate rejects owners with neither or both identifiers set.
func (o Owner) Validate() error {
	hasUser := o.UserID != uuid.Nil
	hasSession := o.SessionID != ""
	switch {
	case hasUser && hasSession:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner must be a user or a session, not both")
	case !hasUser && !hasSession:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	case len(o.SessionID) > maxSessionIDLength:
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is too long")
	}
	return nil
}

func (o Owner) String() string {
	if o.IsUser() {
		return "user:" + o.UserID.String()
	}
	return "session:" + o.SessionID
}

// activeIndex names the partial unique index guarding this owner's active cart.
func (o Owner) activeIndex() string {
	if o.IsUser() {
		return "ux_carts_active_user"
	}
	return "ux_carts_active_session"
}

func (o Owner) userIDPtr() *uuid.UUID {
	if !o.IsUser() {
		return nil
	}
	id := o.UserID
	return &id
}

func (o Owner) sessionIDPtr() *string {
	if o.IsUser() {
		return nil
	}
	id := o.SessionID
	return &id
}
