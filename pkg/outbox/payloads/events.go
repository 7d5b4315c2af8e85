package payloads

import (
	"github.com/google/uuid"

	"github.com/partsdepot/cart-service/pkg/enums"
)

// CartCreatedEvent is emitted when an owner receives a new active cart.
type CartCreatedEvent struct {
	CartID    uuid.UUID           `json:"cart_id"`
	OwnerKind enums.CartOwnerKind `json:"owner_kind"`
	UserID    *uuid.UUID          `json:"user_id,omitempty"`
	SessionID *string             `json:"session_id,omitempty"`
}

// CartMergedEvent is emitted on the user cart after a guest cart is folded into it.
type CartMergedEvent struct {
	UserCartID    uuid.UUID `json:"user_cart_id"`
	GuestCartID   uuid.UUID `json:"guest_cart_id"`
	UserID        uuid.UUID `json:"user_id"`
	SessionID     string    `json:"session_id"`
	LinesAdded    int       `json:"lines_added"`
	LinesCombined int       `json:"lines_combined"`
	TotalPrice    string    `json:"total_price"`
}

// CartDeactivatedEvent is emitted for every cart that leaves the active state.
type CartDeactivatedEvent struct {
	CartID    uuid.UUID                    `json:"cart_id"`
	Reason    enums.CartDeactivationReason `json:"reason"`
	OwnerKind enums.CartOwnerKind          `json:"owner_kind"`
	UserID    *uuid.UUID                   `json:"user_id,omitempty"`
	SessionID *string                      `json:"session_id,omitempty"`
}
