package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/enums"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
	"github.com/partsdepot/cart-service/pkg/logger"
	"github.com/partsdepot/cart-service/pkg/metrics"
	"github.com/partsdepot/cart-service/pkg/outbox"
)

const (
	defaultCreateAttempts  = 3
	defaultMaxLineQuantity = 99
	staleSweepBatchSize    = 200
)

const (
	mergeResultMerged = "merged"
	mergeResultNoop   = "noop"
	mergeResultFailed = "failed"
)

// Service manages the lifecycle of storefront carts and their lines.
type Service interface {
	GetOrCreateActiveCart(ctx context.Context, owner Owner) (*models.Cart, error)
	MergeGuestCartWithUserCart(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Cart, error)
	DeactivateCartsForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeactivateStaleGuestCarts(ctx context.Context, olderThan time.Time) (int64, error)

	GetCart(ctx context.Context, owner Owner) (*models.Cart, error)
	ItemCount(ctx context.Context, owner Owner) (int, error)
	AddItem(ctx context.Context, owner Owner, sparePartID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, owner Owner) (*models.Cart, error)
	SyncCart(ctx context.Context, owner Owner, lines []SyncLine) (*SyncResult, error)
}

// ServiceParams wires the cart service.
type ServiceParams struct {
	Repository CartRepository
	Tx         txRunner
	Parts      partLoader
	Events     eventEmitter
	Metrics    *metrics.CartMetrics
	Logger     *logger.Logger

	CreateAttempts  int
	MaxLineQuantity int
	Now             func() time.Time
}

type service struct {
	repo            CartRepository
	tx              txRunner
	parts           partLoader
	events          eventEmitter
	metrics         *metrics.CartMetrics
	logg            *logger.Logger
	createAttempts  int
	maxLineQuantity int
	now             func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Parts == nil {
		return nil, fmt.Errorf("part loader required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	attempts := params.CreateAttempts
	if attempts <= 0 {
		attempts = defaultCreateAttempts
	}
	maxQty := params.MaxLineQuantity
	if maxQty <= 0 {
		maxQty = defaultMaxLineQuantity
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &service{
		repo:            params.Repository,
		tx:              params.Tx,
		parts:           params.Parts,
		events:          params.Events,
		metrics:         params.Metrics,
		logg:            params.Logger,
		createAttempts:  attempts,
		maxLineQuantity: maxQty,
		now:             now,
	}, nil
}

// GetOrCreateActiveCart returns the owner's active cart, creating it when
// absent. A create that loses the race against a concurrent request re-reads
// the winner's cart instead of failing.
func (s *service) GetOrCreateActiveCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	ctx = s.ownerContext(ctx, owner)

	for attempt := 1; ; attempt++ {
		cart, err := s.findActive(ctx, owner)
		if err != nil {
			return nil, err
		}
		if cart != nil {
			return cart, nil
		}
		if attempt > s.createAttempts {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "active cart unavailable after concurrent creates")
		}

		cart, err = s.create(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !dbpkg.IsUniqueViolation(err, owner.activeIndex()) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
		}
		s.metrics.IncCreateConflict()
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "cart create lost race, refetching")
	}
}

// MergeGuestCartWithUserCart folds the session's active cart into the user's
// active cart in one transaction and deactivates the guest cart.
func (s *service) MergeGuestCartWithUserCart(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Cart, error) {
	guestOwner := SessionOwner(sessionID)
	userOwner := UserOwner(userID)
	if guestOwner.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if err := guestOwner.Validate(); err != nil {
		return nil, err
	}
	if err := userOwner.Validate(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ctx = s.logg.WithSessionID(s.logg.WithUserID(ctx, userID.String()), guestOwner.SessionID)

	userCart, err := s.GetOrCreateActiveCart(ctx, userOwner)
	if err != nil {
		return nil, err
	}

	outcome := mergeOutcome{userCartID: userCart.ID}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.mergeTx(ctx, tx, guestOwner, userOwner, &outcome)
	})
	if err != nil {
		s.metrics.IncMerge(mergeResultFailed)
		return nil, asDependency(err, "merge guest cart")
	}

	s.recordRepairs(outcome.repaired)
	if outcome.created {
		s.metrics.IncCreated(enums.CartOwnerUser.String())
	}
	if outcome.merged {
		s.metrics.IncMerge(mergeResultMerged)
		s.metrics.AddDeactivated(enums.CartDeactivatedMerged.String(), 1)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id":        outcome.userCartID.String(),
			"guest_cart_id":  outcome.guestCartID.String(),
			"lines_added":    outcome.linesAdded,
			"lines_combined": outcome.linesCombined,
		}), "guest cart merged")
	} else {
		s.metrics.IncMerge(mergeResultNoop)
	}

	return s.load(ctx, outcome.userCartID)
}

type mergeOutcome struct {
	userCartID    uuid.UUID
	guestCartID   uuid.UUID
	linesAdded    int
	linesCombined int
	total         decimal.Decimal
	merged        bool
	created       bool
	repaired      int64
}

func (s *service) mergeTx(ctx context.Context, tx *gorm.DB, guestOwner, userOwner Owner, outcome *mergeOutcome) error {
	repo := s.repo.WithTx(tx)

	guest, repaired, err := s.lockActive(ctx, tx, guestOwner)
	if err != nil {
		return err
	}
	outcome.repaired += repaired
	if guest == nil {
		return nil
	}

	user, repaired, err := s.lockActive(ctx, tx, userOwner)
	if err != nil {
		return err
	}
	outcome.repaired += repaired
	if user == nil {
		// deactivated between the lookup above and the lock
		user, err = s.createTx(ctx, tx, userOwner)
		if err != nil {
			return err
		}
		outcome.created = true
	}
	outcome.userCartID = user.ID
	if guest.ID == user.ID {
		return nil
	}
	outcome.guestCartID = guest.ID

	lines := make(map[uuid.UUID]models.CartItem, len(user.Items))
	for _, item := range user.Items {
		lines[item.SparePartID] = item
	}
	for _, guestLine := range guest.Items {
		if current, ok := lines[guestLine.SparePartID]; ok {
			current.Quantity += guestLine.Quantity
			if err := repo.UpdateItemQuantity(ctx, current.ID, current.Quantity); err != nil {
				return err
			}
			lines[guestLine.SparePartID] = current
			outcome.linesCombined++
			continue
		}
		item := models.CartItem{
			ID:          uuid.New(),
			CartID:      user.ID,
			SparePartID: guestLine.SparePartID,
			Quantity:    guestLine.Quantity,
			Price:       guestLine.Price,
		}
		if err := repo.CreateItem(ctx, &item); err != nil {
			return err
		}
		lines[guestLine.SparePartID] = item
		outcome.linesAdded++
	}

	total, err := s.recomputeTotal(ctx, repo, user.ID)
	if err != nil {
		return err
	}
	outcome.total = total

	if _, err := repo.Deactivate(ctx, []uuid.UUID{guest.ID}, s.now()); err != nil {
		return err
	}
	if err := s.emitMerged(ctx, tx, userOwner, guestOwner.SessionID, *outcome); err != nil {
		return err
	}
	if err := s.emitDeactivated(ctx, tx, actorFor(userOwner), *guest, enums.CartDeactivatedMerged); err != nil {
		return err
	}
	outcome.merged = true
	return nil
}

// DeactivateCartsForUser deactivates every active cart the user owns and
// returns how many were affected.
func (s *service) DeactivateCartsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	owner := UserOwner(userID)
	if err := owner.Validate(); err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ctx = s.ownerContext(ctx, owner)

	var affected int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		carts, err := repo.ListActiveByOwner(ctx, owner, true)
		if err != nil {
			return err
		}
		if len(carts) == 0 {
			return nil
		}
		affected, err = repo.Deactivate(ctx, cartIDs(carts), s.now())
		if err != nil {
			return err
		}
		for _, cart := range carts {
			if err := s.emitDeactivated(ctx, tx, actorFor(owner), cart, enums.CartDeactivatedLogout); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, asDependency(err, "deactivate user carts")
	}

	s.metrics.AddDeactivated(enums.CartDeactivatedLogout.String(), affected)
	if affected > 1 {
		s.logg.Warn(s.logg.WithField(ctx, "deactivated", affected), "user had more than one active cart at logout")
	} else if affected == 1 {
		s.logg.Info(ctx, "user cart deactivated")
	}
	return affected, nil
}

// DeactivateStaleGuestCarts deactivates session carts not updated since
// olderThan, in batches. Rows are kept.
func (s *service) DeactivateStaleGuestCarts(ctx context.Context, olderThan time.Time) (int64, error) {
	if olderThan.IsZero() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "cutoff is required")
	}

	var total int64
	for {
		var batch int
		var affected int64
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			carts, err := repo.ListStaleGuestCarts(ctx, olderThan, staleSweepBatchSize)
			if err != nil {
				return err
			}
			batch = len(carts)
			if batch == 0 {
				return nil
			}
			affected, err = repo.Deactivate(ctx, cartIDs(carts), s.now())
			if err != nil {
				return err
			}
			for _, cart := range carts {
				actor := &outbox.ActorRef{}
				if cart.SessionID != nil {
					actor.SessionID = *cart.SessionID
				}
				if err := s.emitDeactivated(ctx, tx, actor, cart, enums.CartDeactivatedStale); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.metrics.AddDeactivated(enums.CartDeactivatedStale.String(), total)
			return total, asDependency(err, "deactivate stale guest carts")
		}
		total += affected
		if batch < staleSweepBatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			s.metrics.AddDeactivated(enums.CartDeactivatedStale.String(), total)
			return total, err
		}
	}

	s.metrics.AddDeactivated(enums.CartDeactivatedStale.String(), total)
	return total, nil
}

// GetCart returns the owner's active cart with its lines.
func (s *service) GetCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	return s.GetOrCreateActiveCart(ctx, owner)
}

// ItemCount sums line quantities on the owner's active cart without creating one.
func (s *service) ItemCount(ctx context.Context, owner Owner) (int, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	cart, err := s.findActive(s.ownerContext(ctx, owner), owner)
	if err != nil || cart == nil {
		return 0, err
	}
	return cart.ItemCount(), nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, sparePartID uuid.UUID, quantity int) (*models.Cart, error) {
	if sparePartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "spare part id is required")
	}
	if quantity == 0 {
		quantity = 1
	}
	if err := s.validateQuantity(quantity); err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	part, err := s.loadPart(ctx, sparePartID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, func(ctx context.Context, repo CartRepository, cart *models.Cart) error {
		existing, err := repo.FindItemByPart(ctx, cart.ID, part.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			summed := existing.Quantity + quantity
			if summed > s.maxLineQuantity {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line quantity cannot exceed %d", s.maxLineQuantity))
			}
			return repo.UpdateItemQuantity(ctx, existing.ID, summed)
		}
		return repo.CreateItem(ctx, &models.CartItem{
			CartID:      cart.ID,
			SparePartID: part.ID,
			Quantity:    quantity,
			Price:       part.Price,
		})
	})
}

// UpdateItemQuantity sets a line's quantity; zero or less removes the line.
func (s *service) UpdateItemQuantity(ctx context.Context, owner Owner, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if quantity > s.maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", s.maxLineQuantity))
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, func(ctx context.Context, repo CartRepository, cart *models.Cart) error {
		item, err := s.findItem(ctx, repo, cart.ID, itemID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			return repo.DeleteItem(ctx, item.ID)
		}
		return repo.UpdateItemQuantity(ctx, item.ID, quantity)
	})
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, itemID uuid.UUID) (*models.Cart, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, func(ctx context.Context, repo CartRepository, cart *models.Cart) error {
		item, err := s.findItem(ctx, repo, cart.ID, itemID)
		if err != nil {
			return err
		}
		return repo.DeleteItem(ctx, item.ID)
	})
}

func (s *service) ClearCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, func(ctx context.Context, repo CartRepository, cart *models.Cart) error {
		return repo.DeleteItems(ctx, cart.ID)
	})
}

// SyncLine is one entry of a client-side cart snapshot.
type SyncLine struct {
	SparePartID uuid.UUID
	Quantity    int
}

// SkippedLine reports a snapshot entry that could not be added.
type SkippedLine struct {
	SparePartID uuid.UUID `json:"spare_part_id"`
	Reason      string    `json:"reason"`
}

const (
	SkipReasonNotFound    = "not_found"
	SkipReasonUnavailable = "unavailable"
)

// SyncResult is the cart after a sync plus the entries that were dropped.
type SyncResult struct {
	Cart    *models.Cart
	Skipped []SkippedLine
}

// SyncCart replaces the cart contents with the snapshot. Duplicate parts are
// summed; unknown and unavailable parts are skipped and reported.
func (s *service) SyncCart(ctx context.Context, owner Owner, lines []SyncLine) (*SyncResult, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	order := make([]uuid.UUID, 0, len(lines))
	quantities := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.SparePartID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "spare part id is required")
		}
		if err := s.validateQuantity(line.Quantity); err != nil {
			return nil, err
		}
		if _, seen := quantities[line.SparePartID]; !seen {
			order = append(order, line.SparePartID)
		}
		quantities[line.SparePartID] += line.Quantity
		if quantities[line.SparePartID] > s.maxLineQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line quantity cannot exceed %d", s.maxLineQuantity))
		}
	}

	catalog, err := s.parts.FindByIDs(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load spare parts")
	}

	skipped := []SkippedLine{}
	keep := make([]models.SparePart, 0, len(order))
	for _, id := range order {
		part, ok := catalog[id]
		switch {
		case !ok:
			skipped = append(skipped, SkippedLine{SparePartID: id, Reason: SkipReasonNotFound})
		case !part.IsAvailable:
			skipped = append(skipped, SkippedLine{SparePartID: id, Reason: SkipReasonUnavailable})
		default:
			keep = append(keep, part)
		}
	}

	cart, err := s.mutate(ctx, owner, func(ctx context.Context, repo CartRepository, cart *models.Cart) error {
		if err := repo.DeleteItems(ctx, cart.ID); err != nil {
			return err
		}
		for _, part := range keep {
			if err := repo.CreateItem(ctx, &models.CartItem{
				CartID:      cart.ID,
				SparePartID: part.ID,
				Quantity:    quantities[part.ID],
				Price:       part.Price,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &SyncResult{Cart: cart, Skipped: skipped}, nil
}

type mutation func(ctx context.Context, repo CartRepository, cart *models.Cart) error

// mutate runs fn against the owner's locked active cart and recomputes the
// total in the same transaction.
func (s *service) mutate(ctx context.Context, owner Owner, fn mutation) (*models.Cart, error) {
	cart, err := s.GetOrCreateActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCartID(s.ownerContext(ctx, owner), cart.ID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockActiveCart(ctx, cart.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is no longer active")
			}
			return err
		}
		if err := fn(ctx, repo, locked); err != nil {
			return err
		}
		_, err = s.recomputeTotal(ctx, repo, locked.ID)
		return err
	})
	if err != nil {
		return nil, asDependency(err, "update cart")
	}
	return s.load(ctx, cart.ID)
}

// findActive returns the owner's newest active cart, or nil. Extra active
// carts are deactivated on the way.
func (s *service) findActive(ctx context.Context, owner Owner) (*models.Cart, error) {
	carts, err := s.repo.ListActiveByOwner(ctx, owner, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	switch len(carts) {
	case 0:
		return nil, nil
	case 1:
		return &carts[0], nil
	}

	var kept *models.Cart
	var repaired int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		kept, repaired, err = s.lockActive(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, asDependency(err, "repair duplicate active carts")
	}
	s.recordRepairs(repaired)
	return kept, nil
}

// lockActive locks the owner's active carts inside tx, keeps the newest and
// deactivates the rest.
func (s *service) lockActive(ctx context.Context, tx *gorm.DB, owner Owner) (*models.Cart, int64, error) {
	repo := s.repo.WithTx(tx)
	carts, err := repo.ListActiveByOwner(ctx, owner, true)
	if err != nil {
		return nil, 0, err
	}
	if len(carts) == 0 {
		return nil, 0, nil
	}
	kept := carts[0]
	if len(carts) == 1 {
		return &kept, 0, nil
	}

	duplicates := carts[1:]
	repaired, err := repo.Deactivate(ctx, cartIDs(duplicates), s.now())
	if err != nil {
		return nil, 0, err
	}
	for _, dup := range duplicates {
		if err := s.emitDeactivated(ctx, tx, actorFor(owner), dup, enums.CartDeactivatedDuplicate); err != nil {
			return nil, 0, err
		}
	}

	ids := make([]string, 0, len(duplicates))
	for _, dup := range duplicates {
		ids = append(ids, dup.ID.String())
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"owner":                owner.String(),
		"kept_cart_id":         kept.ID.String(),
		"deactivated_cart_ids": ids,
	}), "multiple active carts found, kept newest")
	return &kept, repaired, nil
}

func (s *service) create(ctx context.Context, owner Owner) (*models.Cart, error) {
	var cart *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		cart, err = s.createTx(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCreated(owner.Kind().String())
	s.logg.Info(s.logg.WithCartID(ctx, cart.ID.String()), "cart created")
	return cart, nil
}

func (s *service) createTx(ctx context.Context, tx *gorm.DB, owner Owner) (*models.Cart, error) {
	cart := &models.Cart{
		ID:         uuid.New(),
		UserID:     owner.userIDPtr(),
		SessionID:  owner.sessionIDPtr(),
		IsActive:   true,
		TotalPrice: decimal.Zero,
		Items:      []models.CartItem{},
	}
	if err := s.repo.WithTx(tx).Create(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.emitCreated(ctx, tx, owner, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *service) recomputeTotal(ctx context.Context, repo CartRepository, cartID uuid.UUID) (decimal.Decimal, error) {
	items, err := repo.ListItems(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}
	total := (&models.Cart{Items: items}).ItemsTotal().Round(2)
	if err := repo.UpdateTotal(ctx, cartID, total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *service) loadPart(ctx context.Context, id uuid.UUID) (*models.SparePart, error) {
	part, err := s.parts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "spare part not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load spare part")
	}
	if !part.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "spare part is not available").
			WithDetails(map[string]any{"spare_part_id": id.String()})
	}
	return part, nil
}

func (s *service) findItem(ctx context.Context, repo CartRepository, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	item, err := repo.FindItem(ctx, cartID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, err
	}
	return item, nil
}

func (s *service) validateQuantity(quantity int) error {
	if quantity < 1 || quantity > s.maxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", s.maxLineQuantity))
	}
	return nil
}

func (s *service) recordRepairs(n int64) {
	if n <= 0 {
		return
	}
	s.metrics.AddInvariantRepairs(n)
	s.metrics.AddDeactivated(enums.CartDeactivatedDuplicate.String(), n)
}

func (s *service) ownerContext(ctx context.Context, owner Owner) context.Context {
	if owner.IsUser() {
		return s.logg.WithUserID(ctx, owner.UserID.String())
	}
	return s.logg.WithSessionID(ctx, owner.SessionID)
}

// asDependency keeps typed errors and classifies everything else as a
// storage failure.
func asDependency(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func cartIDs(carts []models.Cart) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(carts))
	for _, cart := range carts {
		ids = append(ids, cart.ID)
	}
	return ids
}
