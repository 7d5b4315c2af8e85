package cart

import (
	cartdto "github.com/partsdepot/cart-service/api/controllers/cart/dto"
	cartsvc "github.com/partsdepot/cart-service/internal/cart"
	"github.com/partsdepot/cart-service/pkg/db/models"
)

func newCart(record *models.Cart) cartdto.Cart {
	items := make([]cartdto.CartItem, 0, len(record.Items))
	for _, item := range record.Items {
		line := cartdto.CartItem{
			ID:          item.ID,
			SparePartID: item.SparePartID,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			LineTotal:   item.LineTotal(),
			CreatedAt:   item.CreatedAt,
			UpdatedAt:   item.UpdatedAt,
		}
		if part := item.SparePart; part != nil {
			line.SparePart = &cartdto.SparePart{
				ID:           part.ID,
				Name:         part.Name,
				PartNumber:   part.PartNumber,
				Manufacturer: part.Manufacturer,
				Price:        part.Price,
				IsAvailable:  part.IsAvailable,
			}
		}
		items = append(items, line)
	}

	return cartdto.Cart{
		ID:         record.ID,
		OwnerKind:  string(record.OwnerKind()),
		UserID:     record.UserID,
		IsActive:   record.IsActive,
		ItemCount:  record.ItemCount(),
		TotalPrice: record.TotalPrice,
		Items:      items,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func newSyncResponse(result *cartsvc.SyncResult) cartdto.SyncCartResponse {
	skipped := make([]cartdto.SkippedLine, 0, len(result.Skipped))
	for _, line := range result.Skipped {
		skipped = append(skipped, cartdto.SkippedLine{SparePartID: line.SparePartID, Reason: line.Reason})
	}
	return cartdto.SyncCartResponse{Cart: newCart(result.Cart), Skipped: skipped}
}
