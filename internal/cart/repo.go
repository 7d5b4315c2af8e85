package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func (r *Repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Preload("Items.SparePart")
}

// forUpdate adds a row lock where the dialect supports one.
func forUpdate(db *gorm.DB) *gorm.DB {
	if dbpkg.SupportsRowLocks(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// ListActiveByOwner returns the owner's active carts, newest first. More than
// one row means the single-active-cart constraint was bypassed.
func (r *Repository) ListActiveByOwner(ctx context.Context, owner Owner, lock bool) ([]models.Cart, error) {
	query := r.withItems(ctx).Where("is_active = ?", true)
	if owner.IsUser() {
		query = query.Where("user_id = ?", owner.UserID)
	} else {
		query = query.Where("session_id = ?", owner.SessionID)
	}
	if lock {
		query = forUpdate(query)
	}
	var carts []models.Cart
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Find(&carts).Error
	return carts, err
}

// FindByID loads a cart with its lines regardless of state.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.withItems(ctx).Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockActiveCart locks the cart row for the rest of the transaction and
// returns it with its lines. Inactive carts are reported as not found.
func (r *Repository) LockActiveCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := forUpdate(r.withItems(ctx)).
		Where("id = ? AND is_active = ?", id, true).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Items").Create(cart).Error
}

// Deactivate flips the given carts to inactive. Carts already inactive are
// left untouched and not counted.
func (r *Repository) Deactivate(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": at,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// ListStaleGuestCarts returns active session carts untouched since olderThan.
func (r *Repository) ListStaleGuestCarts(ctx context.Context, olderThan time.Time, limit int) ([]models.Cart, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND session_id IS NOT NULL AND updated_at < ?", true, olderThan)
	if dbpkg.SupportsRowLocks(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var carts []models.Cart
	err := query.
		Order("updated_at ASC").
		Limit(limit).
		Find(&carts).Error
	return carts, err
}

func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var rows []models.CartItem
	err := orderedItems(r.db.WithContext(ctx)).
		Where("cart_id = ?", cartID).
		Find(&rows).Error
	return rows, err
}

// FindItem returns the line only when it belongs to cartID.
func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByPart returns the cart's line for the part, or nil when absent.
func (r *Repository) FindItemByPart(ctx context.Context, cartID, sparePartID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND spare_part_id = ?", cartID, sparePartID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("SparePart").Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"quantity":   quantity,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", itemID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// UpdateTotal stores the denormalized total and bumps updated_at, which the
// stale cart sweep keys on.
func (r *Repository) UpdateTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"total_price": total,
			"updated_at":  time.Now().UTC(),
		}).Error
}
