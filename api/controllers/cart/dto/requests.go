package cartdto

type AddItemRequest struct {
	SparePartID string `json:"spare_part_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
}

type UpdateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type SyncCartRequest struct {
	Items []SyncCartLine `json:"items" validate:"max=200,dive"`
}

type SyncCartLine struct {
	SparePartID string `json:"spare_part_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity"`
}
