package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/outbox"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	ListActiveByOwner(ctx context.Context, owner Owner, lock bool) ([]models.Cart, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	LockActiveCart(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	Deactivate(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
	ListStaleGuestCarts(ctx context.Context, olderThan time.Time, limit int) ([]models.Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	FindItemByPart(ctx context.Context, cartID, sparePartID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	UpdateTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type partLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SparePart, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SparePart, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
