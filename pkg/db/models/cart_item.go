package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one spare part line on a cart. Price is the unit price captured
// when the line was first added.
type CartItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID       `gorm:"column:cart_id;type:uuid;not null"`
	SparePartID uuid.UUID       `gorm:"column:spare_part_id;type:uuid;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	SparePart   *SparePart      `gorm:"foreignKey:SparePartID"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal returns price * quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
