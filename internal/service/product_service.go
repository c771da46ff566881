package service

import (
	"context"
	"fmt"
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProductService interface {
	CreateProduct(ctx context.Context, req *CreateProductRequest, actor Actor) (*PlacementResult, error)
	Place(ctx context.Context, productID, slotID uuid.UUID, actor Actor, opts Options) (*PlacementResult, error)
	Move(ctx context.Context, productID, slotID uuid.UUID, actor Actor, opts Options) (*PlacementResult, error)
	PartialMove(ctx context.Context, productID uuid.UUID, quantity int, slotID uuid.UUID, actor Actor, opts Options) (*SplitResult, error)
	PartialExit(ctx context.Context, productID uuid.UUID, quantity int, actor Actor, opts Options) (*StockResult, error)
	AddStock(ctx context.Context, productID uuid.UUID, quantity int, actor Actor, opts Options) (*StockResult, error)
	Remove(ctx context.Context, productID uuid.UUID, actor Actor, opts Options) (*StockResult, error)

	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]model.Movement, error)
}

type CreateProductRequest struct {
	LotCode        string     `json:"lot_code" validate:"required,max=64,lot_code"`
	SeedTypeID     uuid.UUID  `json:"seed_type_id" validate:"uuid_required"`
	Quantity       int        `json:"quantity" validate:"gt=0"`
	WeightPerUnit  float64    `json:"weight_per_unit" validate:"gt=0"`
	SlotID         *uuid.UUID `json:"slot_id"`
	ClientID       *uuid.UUID `json:"client_id"`
	BatchID        *string    `json:"batch_id" validate:"omitempty,max=64"`
	EntryDate      *time.Time `json:"entry_date"`
	ExpirationDate *time.Time `json:"expiration_date"`
	Force          bool       `json:"force"`
	Reason         string     `json:"reason"`
	Notes          string     `json:"notes"`
}

// PlacementResult is returned by operations that put a product into a slot.
// SameLocation is set when a move targeted the slot the product already holds.
type PlacementResult struct {
	Product      *model.Product   `json:"product"`
	Movement     *model.Movement  `json:"movement,omitempty"`
	Warning      *CapacityWarning `json:"warning,omitempty"`
	SameLocation bool             `json:"same_location,omitempty"`
}

type SplitResult struct {
	Origin    *model.Product   `json:"origin"`
	Split     *model.Product   `json:"split"`
	Movements []model.Movement `json:"movements"`
	Warning   *CapacityWarning `json:"warning,omitempty"`
}

type StockResult struct {
	Product  *model.Product  `json:"product"`
	Movement *model.Movement `json:"movement"`
}

type ProductServiceDeps struct {
	DB          *gorm.DB
	Products    repository.ProductRepository
	Slots       repository.SlotRepository
	SeedTypes   repository.SeedTypeRepository
	Withdrawals repository.WithdrawalRepository
	Capacity    CapacityService
	Ledger      MovementLedger
	Advisor     *Advisor
	Policy      Policy
	Logger      *zap.Logger
}

type productService struct {
	db          *gorm.DB
	products    repository.ProductRepository
	slots       repository.SlotRepository
	seedTypes   repository.SeedTypeRepository
	withdrawals repository.WithdrawalRepository
	capacity    CapacityService
	ledger      MovementLedger
	advisor     *Advisor
	policy      Policy
	log         *zap.Logger
}

func NewProductService(deps ProductServiceDeps) ProductService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &productService{
		db:          deps.DB,
		products:    deps.Products,
		slots:       deps.Slots,
		seedTypes:   deps.SeedTypes,
		withdrawals: deps.Withdrawals,
		capacity:    deps.Capacity,
		ledger:      deps.Ledger,
		advisor:     deps.Advisor,
		policy:      deps.Policy,
		log:         log,
	}
}

func (s *productService) CreateProduct(ctx context.Context, req *CreateProductRequest, actor Actor) (result *PlacementResult, err error) {
	defer s.advisor.Observe("create_product", time.Now(), &err)

	// 1. Validate request
	if err := validate(req); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	entry := now
	if req.EntryDate != nil {
		entry = req.EntryDate.UTC()
	}
	if req.ExpirationDate != nil && req.ExpirationDate.Before(entry) {
		return nil, invalid("expiration_date must not be before entry_date")
	}

	product := &model.Product{
		LotCode:        req.LotCode,
		SeedTypeID:     req.SeedTypeID,
		WeightPerUnit:  req.WeightPerUnit,
		Status:         model.StatusAwaitingPlacement,
		ClientID:       copyID(req.ClientID),
		BatchID:        req.BatchID,
		EntryDate:      entry,
		ExpirationDate: req.ExpirationDate,
		Version:        1,
	}
	product.SetQuantity(req.Quantity)
	product.CreatedBy = actor.auditID()
	product.UpdatedBy = actor.auditID()

	opts := Options{Force: req.Force, Reason: req.Reason, Notes: req.Notes}
	result = &PlacementResult{Product: product}
	var chamberID uuid.UUID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. Seed type must exist and be active
		if err := s.checkSeedType(tx, product.SeedTypeID); err != nil {
			return err
		}

		if req.SlotID == nil {
			return s.products.Create(tx, product)
		}

		// 3. Placement guards for the initial slot
		slot, warning, err := s.checkDestination(tx, *req.SlotID, product.TotalWeight, opts)
		if err != nil {
			return err
		}
		result.Warning = warning
		chamberID = slot.ChamberID

		// 4. Persist product, slot and ENTRY movement
		product.Status = model.StatusPlaced
		product.SlotID = copyID(&slot.ID)
		product.LastMovementAt = &now
		if err := s.products.Create(tx, product); err != nil {
			return err
		}
		if err := s.occupy(tx, slot, product.TotalWeight); err != nil {
			return err
		}
		mv := engineMovement(model.MovementEntry, product, actor, nil, &slot.ID, product.Quantity, product.TotalWeight, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}
		result.Movement = mv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", product.ID.String()),
		zap.String("lot_code", product.LotCode),
		zap.String("status", string(product.Status)),
		zap.String("actor_id", actor.ID.String()),
	)
	s.advisor.Committed(ctx, Event{
		Action:     "product_created",
		Actor:      actor,
		ChamberIDs: []uuid.UUID{chamberID},
		Data:       result,
		Message:    fmt.Sprintf("%s registered lot '%s'", actor.Name, product.LotCode),
	})
	return result, nil
}

func (s *productService) Place(ctx context.Context, productID, slotID uuid.UUID, actor Actor, opts Options) (result *PlacementResult, err error) {
	defer s.advisor.Observe("place", time.Now(), &err)

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Load product and check its state
		product, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if product.Status != model.StatusAwaitingPlacement {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "place"}
		}

		// 2. Guards: slot, chamber, seed type, occupancy, capacity
		slot, err := s.capacity.LoadTarget(tx, slotID)
		if err != nil {
			return err
		}
		if err := s.checkSeedType(tx, product.SeedTypeID); err != nil {
			return err
		}
		check, err := s.capacity.CheckSlot(tx, slot, product.TotalWeight)
		if err != nil {
			return err
		}
		warning, err := s.applyMarginPolicy(check.Warning, opts)
		if err != nil {
			return err
		}

		// 3. Occupy, update product, record ENTRY
		now := time.Now().UTC()
		if err := s.occupy(tx, slot, product.TotalWeight); err != nil {
			return err
		}
		product.Status = model.StatusPlaced
		product.SlotID = copyID(&slot.ID)
		product.LastMovementAt = &now
		if err := s.save(tx, product, actor); err != nil {
			return err
		}
		mv := engineMovement(model.MovementEntry, product, actor, nil, &slot.ID, product.Quantity, product.TotalWeight, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chamberID = slot.ChamberID
		result = &PlacementResult{Product: product, Movement: mv, Warning: warning}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_placed", actor, result.Product, []uuid.UUID{chamberID}, result,
		fmt.Sprintf("%s placed lot '%s'", actor.Name, result.Product.LotCode))
	return result, nil
}

func (s *productService) Move(ctx context.Context, productID, slotID uuid.UUID, actor Actor, opts Options) (result *PlacementResult, err error) {
	defer s.advisor.Observe("move", time.Now(), &err)

	var chambers []uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if product.Status != model.StatusPlaced {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "move"}
		}
		if product.SlotID != nil && *product.SlotID == slotID {
			result = &PlacementResult{Product: product, SameLocation: true}
			return nil
		}

		dest, warning, err := s.checkDestination(tx, slotID, product.TotalWeight, opts)
		if err != nil {
			return err
		}
		origin, err := s.currentSlot(tx, product)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.release(tx, origin); err != nil {
			return err
		}
		if err := s.occupy(tx, dest, product.TotalWeight); err != nil {
			return err
		}
		product.SlotID = copyID(&dest.ID)
		product.LastMovementAt = &now
		if err := s.save(tx, product, actor); err != nil {
			return err
		}
		mv := engineMovement(model.MovementTransfer, product, actor, &origin.ID, &dest.ID, product.Quantity, product.TotalWeight, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chambers = []uuid.UUID{origin.ChamberID, dest.ChamberID}
		result = &PlacementResult{Product: product, Movement: mv, Warning: warning}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.SameLocation {
		return result, nil
	}

	s.committed(ctx, "product_moved", actor, result.Product, chambers, result,
		fmt.Sprintf("%s moved lot '%s'", actor.Name, result.Product.LotCode))
	return result, nil
}

func (s *productService) PartialMove(ctx context.Context, productID uuid.UUID, quantity int, slotID uuid.UUID, actor Actor, opts Options) (result *SplitResult, err error) {
	defer s.advisor.Observe("partial_move", time.Now(), &err)

	var chambers []uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		origin, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if origin.Status != model.StatusPlaced {
			return &InvalidTransitionError{Entity: "product", From: string(origin.Status), Action: "partially move"}
		}
		if quantity <= 0 || quantity >= origin.Quantity {
			return fmt.Errorf("%w: partial move needs 0 < quantity < %d, got %d", ErrInvalidQuantity, origin.Quantity, quantity)
		}

		splitWeight := model.ComputeWeight(quantity, origin.WeightPerUnit)
		dest, warning, err := s.checkDestination(tx, slotID, splitWeight, opts)
		if err != nil {
			return err
		}
		originSlot, err := s.currentSlot(tx, origin)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		// 1. Shrink the origin lot in place
		origin.SetQuantity(origin.Quantity - quantity)
		origin.LastMovementAt = &now
		if err := s.setWeight(tx, originSlot, origin.TotalWeight); err != nil {
			return err
		}
		if err := s.save(tx, origin, actor); err != nil {
			return err
		}

		// 2. Create the linked split product at the destination
		originID := origin.ID
		split := &model.Product{
			LotCode:        origin.LotCode,
			SeedTypeID:     origin.SeedTypeID,
			WeightPerUnit:  origin.WeightPerUnit,
			Status:         model.StatusPlaced,
			SlotID:         copyID(&dest.ID),
			ClientID:       copyID(origin.ClientID),
			BatchID:        origin.BatchID,
			EntryDate:      origin.EntryDate,
			ExpirationDate: origin.ExpirationDate,
			Version:        1,
			LastMovementAt: &now,
			Tracking:       model.Tracking{OriginProductID: &originID, SplitQuantity: quantity},
		}
		split.SetQuantity(quantity)
		split.CreatedBy = actor.auditID()
		split.UpdatedBy = actor.auditID()
		if err := s.products.Create(tx, split); err != nil {
			return err
		}
		if err := s.occupy(tx, dest, split.TotalWeight); err != nil {
			return err
		}

		// 3. TRANSFER on the origin, ENTRY on the split
		transfer := engineMovement(model.MovementTransfer, origin, actor, &originSlot.ID, &dest.ID, quantity, splitWeight, opts, now)
		if err := s.ledger.Append(tx, transfer); err != nil {
			return err
		}
		entry := engineMovement(model.MovementEntry, split, actor, nil, &dest.ID, split.Quantity, split.TotalWeight, opts, now)
		if err := s.ledger.Append(tx, entry); err != nil {
			return err
		}

		chambers = []uuid.UUID{originSlot.ChamberID, dest.ChamberID}
		result = &SplitResult{Origin: origin, Split: split, Movements: []model.Movement{*transfer, *entry}, Warning: warning}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_split", actor, result.Origin, chambers, result,
		fmt.Sprintf("%s moved %d units of lot '%s'", actor.Name, quantity, result.Origin.LotCode))
	return result, nil
}

func (s *productService) PartialExit(ctx context.Context, productID uuid.UUID, quantity int, actor Actor, opts Options) (result *StockResult, err error) {
	defer s.advisor.Observe("partial_exit", time.Now(), &err)

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if product.Status != model.StatusPlaced {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "exit stock from"}
		}
		if quantity <= 0 || quantity > product.Quantity {
			return fmt.Errorf("%w: exit needs 0 < quantity <= %d, got %d", ErrInvalidQuantity, product.Quantity, quantity)
		}
		slot, err := s.currentSlot(tx, product)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		exitWeight := model.ComputeWeight(quantity, product.WeightPerUnit)
		product.SetQuantity(product.Quantity - quantity)
		product.LastMovementAt = &now
		if product.Quantity == 0 {
			product.Status = model.StatusRemoved
			product.SlotID = nil
			if err := s.release(tx, slot); err != nil {
				return err
			}
		} else if err := s.setWeight(tx, slot, product.TotalWeight); err != nil {
			return err
		}
		if err := s.save(tx, product, actor); err != nil {
			return err
		}
		mv := engineMovement(model.MovementExit, product, actor, &slot.ID, nil, quantity, exitWeight, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chamberID = slot.ChamberID
		result = &StockResult{Product: product, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_exit", actor, result.Product, []uuid.UUID{chamberID}, result,
		fmt.Sprintf("%s took %d units out of lot '%s'", actor.Name, quantity, result.Product.LotCode))
	return result, nil
}

func (s *productService) AddStock(ctx context.Context, productID uuid.UUID, quantity int, actor Actor, opts Options) (result *StockResult, err error) {
	defer s.advisor.Observe("add_stock", time.Now(), &err)

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if product.Status != model.StatusPlaced {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "add stock to"}
		}
		if quantity <= 0 {
			return fmt.Errorf("%w: added quantity must be positive, got %d", ErrInvalidQuantity, quantity)
		}
		slot, err := s.currentSlot(tx, product)
		if err != nil {
			return err
		}

		added := model.ComputeWeight(quantity, product.WeightPerUnit)
		if err := s.capacity.CheckHeadroom(tx, slot, added); err != nil {
			return err
		}

		now := time.Now().UTC()
		product.SetQuantity(product.Quantity + quantity)
		product.LastMovementAt = &now
		if err := s.setWeight(tx, slot, product.TotalWeight); err != nil {
			return err
		}
		if err := s.save(tx, product, actor); err != nil {
			return err
		}
		mv := engineMovement(model.MovementAdjustment, product, actor, nil, &slot.ID, quantity, added, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chamberID = slot.ChamberID
		result = &StockResult{Product: product, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_stock_added", actor, result.Product, []uuid.UUID{chamberID}, result,
		fmt.Sprintf("%s added %d units to lot '%s'", actor.Name, quantity, result.Product.LotCode))
	return result, nil
}

func (s *productService) Remove(ctx context.Context, productID uuid.UUID, actor Actor, opts Options) (result *StockResult, err error) {
	defer s.advisor.Observe("remove", time.Now(), &err)

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.loadProduct(tx, productID, opts)
		if err != nil {
			return err
		}
		if !product.Status.IsActive() {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "remove"}
		}
		slot, err := s.currentSlot(tx, product)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		// 1. Cancel any pending withdrawal for this product
		pending, err := s.withdrawals.FindPendingByProduct(tx, product.ID)
		if err != nil {
			return err
		}
		for i := range pending {
			req := &pending[i]
			req.Status = model.WithdrawalCanceled
			req.CanceledBy = copyID(&actor.ID)
			req.ResolvedAt = &now
			req.Reason = "product removed"
			if opts.Reason != "" {
				req.Reason = "product removed: " + opts.Reason
			}
			if err := s.withdrawals.Resolve(tx, req, actor.auditID()); err != nil {
				return staleAs(err, "withdrawal_request", req.ID, 0)
			}
		}

		// 2. Free the slot and close the product
		if err := s.release(tx, slot); err != nil {
			return err
		}
		product.Status = model.StatusRemoved
		product.SlotID = nil
		product.LastMovementAt = &now
		if err := s.save(tx, product, actor); err != nil {
			return err
		}
		mv := engineMovement(model.MovementExit, product, actor, &slot.ID, nil, product.Quantity, product.TotalWeight, opts, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chamberID = slot.ChamberID
		result = &StockResult{Product: product, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "product_removed", actor, result.Product, []uuid.UUID{chamberID}, result,
		fmt.Sprintf("%s removed lot '%s'", actor.Name, result.Product.LotCode))
	return result, nil
}

func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error) {
	return s.products.FindAll(ctx, filter)
}

func (s *productService) GetHistory(ctx context.Context, id uuid.UUID) ([]model.Movement, error) {
	return s.ledger.History(ctx, id)
}

func (s *productService) loadProduct(tx *gorm.DB, id uuid.UUID, opts Options) (*model.Product, error) {
	product, err := s.products.Load(tx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != product.Version {
		return nil, &ConcurrentModificationError{Entity: "product", ID: id, Expected: *opts.ExpectedVersion}
	}
	return product, nil
}

func (s *productService) checkSeedType(tx *gorm.DB, id uuid.UUID) error {
	seedType, err := s.seedTypes.Load(tx, id)
	if err != nil {
		return notFoundAs(err, ErrSeedTypeNotFound)
	}
	if !seedType.Active {
		return ErrSeedTypeInactive
	}
	return nil
}

// checkDestination runs the full capacity validation for a move target and
// applies the safety margin policy to the resulting warning.
func (s *productService) checkDestination(tx *gorm.DB, slotID uuid.UUID, weight float64, opts Options) (*model.Slot, *CapacityWarning, error) {
	check, err := s.capacity.ValidateCapacityTx(tx, slotID, weight)
	if err != nil {
		return nil, nil, err
	}
	warning, err := s.applyMarginPolicy(check.Warning, opts)
	if err != nil {
		return nil, nil, err
	}
	return check.Slot, warning, nil
}

func (s *productService) applyMarginPolicy(w *CapacityWarning, opts Options) (*CapacityWarning, error) {
	if w == nil || opts.Force {
		return nil, nil
	}
	if s.policy.StrictSafetyMargin {
		return nil, fmt.Errorf("%w: %.3f kg exceeds threshold %.3f kg of slot %s", ErrSafetyMarginExceeded, w.Required, w.Threshold, w.SlotID)
	}
	return w, nil
}

func (s *productService) currentSlot(tx *gorm.DB, product *model.Product) (*model.Slot, error) {
	if product.SlotID == nil {
		return nil, fmt.Errorf("product %s in status %s has no slot", product.ID, product.Status)
	}
	slot, err := s.slots.Load(tx, *product.SlotID)
	if err != nil {
		return nil, notFoundAs(err, ErrSlotNotFound)
	}
	return slot, nil
}

func (s *productService) save(tx *gorm.DB, product *model.Product, actor Actor) error {
	expected := product.Version
	return staleAs(s.products.UpdateVersioned(tx, product, actor.auditID()), "product", product.ID, expected)
}

func (s *productService) occupy(tx *gorm.DB, slot *model.Slot, weight float64) error {
	expected := slot.Version
	return staleAs(s.slots.Occupy(tx, slot, weight), "slot", slot.ID, expected)
}

func (s *productService) release(tx *gorm.DB, slot *model.Slot) error {
	expected := slot.Version
	return staleAs(s.slots.Release(tx, slot), "slot", slot.ID, expected)
}

func (s *productService) setWeight(tx *gorm.DB, slot *model.Slot, weight float64) error {
	expected := slot.Version
	return staleAs(s.slots.SetWeight(tx, slot, weight), "slot", slot.ID, expected)
}

func (s *productService) committed(ctx context.Context, action string, actor Actor, product *model.Product, chambers []uuid.UUID, data interface{}, message string) {
	s.log.Info("allocation committed",
		zap.String("action", action),
		zap.String("product_id", product.ID.String()),
		zap.Int64("version", product.Version),
		zap.String("status", string(product.Status)),
		zap.String("actor_id", actor.ID.String()),
	)
	s.advisor.Committed(ctx, Event{
		Action:     action,
		Actor:      actor,
		ChamberIDs: chambers,
		Data:       data,
		Message:    message,
	})
}
