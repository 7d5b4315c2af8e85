package cartdto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the storefront view of an owner's cart.
type Cart struct {
	ID         uuid.UUID       `json:"id"`
	OwnerKind  string          `json:"owner_kind"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	IsActive   bool            `json:"is_active"`
	ItemCount  int             `json:"item_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []CartItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID          uuid.UUID       `json:"id"`
	SparePartID uuid.UUID       `json:"spare_part_id"`
	SparePart   *SparePart      `json:"spare_part,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type SparePart struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	PartNumber   string          `json:"part_number"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Price        decimal.Decimal `json:"price"`
	IsAvailable  bool            `json:"is_available"`
}

type CartCount struct {
	Count int `json:"count"`
}

type SkippedLine struct {
	SparePartID uuid.UUID `json:"spare_part_id"`
	Reason      string    `json:"reason"`
}

// SyncCartResponse carries the synced cart and the lines that were dropped.
type SyncCartResponse struct {
	Cart    Cart          `json:"cart"`
	Skipped []SkippedLine `json:"skipped"`
}

type LogoutResponse struct {
	Deactivated int64 `json:"deactivated"`
}
