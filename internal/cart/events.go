package cart

import (
	"context"

	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/enums"
	"github.com/partsdepot/cart-service/pkg/outbox"
	"github.com/partsdepot/cart-service/pkg/outbox/payloads"
)

func actorFor(owner Owner) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: owner.userIDPtr(), SessionID: owner.SessionID}
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, owner Owner, cart *models.Cart) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCartCreated,
		AggregateType: enums.AggregateCart,
		AggregateID:   cart.ID,
		Actor:         actorFor(owner),
		Data: payloads.CartCreatedEvent{
			CartID:    cart.ID,
			OwnerKind: cart.OwnerKind(),
			UserID:    cart.UserID,
			SessionID: cart.SessionID,
		},
	})
}

func (s *service) emitDeactivated(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, cart models.Cart, reason enums.CartDeactivationReason) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCartDeactivated,
		AggregateType: enums.AggregateCart,
		AggregateID:   cart.ID,
		Actor:         actor,
		Data: payloads.CartDeactivatedEvent{
			CartID:    cart.ID,
			Reason:    reason,
			OwnerKind: cart.OwnerKind(),
			UserID:    cart.UserID,
			SessionID: cart.SessionID,
		},
	})
}

func (s *service) emitMerged(ctx context.Context, tx *gorm.DB, owner Owner, sessionID string, outcome mergeOutcome) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCartMerged,
		AggregateType: enums.AggregateCart,
		AggregateID:   outcome.userCartID,
		Actor:         actorFor(owner),
		Data: payloads.CartMergedEvent{
			UserCartID:    outcome.userCartID,
			GuestCartID:   outcome.guestCartID,
			UserID:        owner.UserID,
			SessionID:     sessionID,
			LinesAdded:    outcome.linesAdded,
			LinesCombined: outcome.linesCombined,
			TotalPrice:    outcome.total.StringFixed(2),
		},
	})
}
