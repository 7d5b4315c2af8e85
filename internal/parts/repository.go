package parts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
)

// Repository reads spare parts from the catalog tables. Carts never write here.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a parts repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID returns the part or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SparePart, error) {
	var part models.SparePart
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&part).Error; err != nil {
		return nil, err
	}
	return &part, nil
}

// FindByIDs loads every requested part that exists, keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SparePart, error) {
	out := make(map[uuid.UUID]models.SparePart, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.SparePart
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// IsNotFound reports whether err means the part does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
