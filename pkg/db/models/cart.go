package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partsdepot/cart-service/pkg/enums"
)

// Cart is a storefront cart owned by exactly one of a guest session or a user.
type Cart struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	SessionID     *string         `gorm:"column:session_id"`
	IsActive      bool            `gorm:"column:is_active;not null"`
	TotalPrice    decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	DeactivatedAt *time.Time      `gorm:"column:deactivated_at"`
	Items         []CartItem      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// OwnerKind reports which owner field is populated.
func (c *Cart) OwnerKind() enums.CartOwnerKind {
	if c.UserID != nil {
		return enums.CartOwnerUser
	}
	return enums.CartOwnerGuest
}

// ItemsTotal sums price * quantity across the loaded items.
func (c *Cart) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemCount sums quantities across the loaded items.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}
