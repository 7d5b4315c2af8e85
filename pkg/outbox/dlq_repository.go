package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
)

const maxDLQErrorLen = 1024

// DLQRepository keeps a copy of every outbox row the publisher gave up on,
// with the reason, so it can be inspected and replayed by hand.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// InsertTx records entry inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = r.now()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		clipped := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the dead letter for an outbox row, or nil when the row
// was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// PruneBefore deletes up to limit dead letters that failed before cutoff.
func (r *DLQRepository) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	expired := tx.Model(&models.OutboxDLQ{}).
		Select("id").
		Where("failed_at < ?", cutoff).
		Order("failed_at ASC")
	if limit > 0 {
		expired = expired.Limit(limit)
	}
	res := tx.WithContext(ctx).Where("id IN (?)", expired).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
