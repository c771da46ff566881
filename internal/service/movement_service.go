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

// MovementLedger is the append-only audit trail of product changes.
type MovementLedger interface {
	Append(tx *gorm.DB, entry *model.Movement) error
	RecordManual(ctx context.Context, req *ManualMovementRequest, actor Actor) (*model.Movement, error)
	History(ctx context.Context, productID uuid.UUID) ([]model.Movement, error)
	List(ctx context.Context, filter repository.MovementFilter) ([]model.Movement, error)
}

// ManualMovementRequest annotates a product's history without changing its state.
type ManualMovementRequest struct {
	ProductID  uuid.UUID  `json:"product_id" validate:"uuid_required"`
	Quantity   int        `json:"quantity" validate:"gte=0"`
	Reason     string     `json:"reason" validate:"required,max=255"`
	Notes      string     `json:"notes"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type movementLedger struct {
	db           *gorm.DB
	movementRepo repository.MovementRepository
	productRepo  repository.ProductRepository
	advisor      *Advisor
	log          *zap.Logger
}

func NewMovementLedger(db *gorm.DB, movementRepo repository.MovementRepository, productRepo repository.ProductRepository, advisor *Advisor, log *zap.Logger) MovementLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &movementLedger{
		db:           db,
		movementRepo: movementRepo,
		productRepo:  productRepo,
		advisor:      advisor,
		log:          log,
	}
}

func (l *movementLedger) Append(tx *gorm.DB, entry *model.Movement) error {
	if !entry.Type.Valid() {
		return invalid("unknown movement type %q", entry.Type)
	}
	if entry.Quantity < 0 || entry.Weight < 0 {
		return ErrInvalidQuantity
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return l.movementRepo.Create(tx, entry)
}

func (l *movementLedger) RecordManual(ctx context.Context, req *ManualMovementRequest, actor Actor) (entry *model.Movement, err error) {
	defer l.advisor.Observe("record_manual_movement", time.Now(), &err)

	if err := validate(req); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	occurred := now
	if req.OccurredAt != nil {
		if req.OccurredAt.After(now) {
			return nil, invalid("occurred_at cannot be in the future")
		}
		occurred = req.OccurredAt.UTC()
	}

	product, err := l.productRepo.FindByID(ctx, req.ProductID)
	if err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}

	entry = &model.Movement{
		Type:       model.MovementAdjustment,
		ProductID:  product.ID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		FromSlotID: copyID(product.SlotID),
		ToSlotID:   copyID(product.SlotID),
		Quantity:   req.Quantity,
		Weight:     model.ComputeWeight(req.Quantity, product.WeightPerUnit),
		Reason:     req.Reason,
		Notes:      req.Notes,
		OccurredAt: occurred,
	}
	if err := l.Append(l.db.WithContext(ctx), entry); err != nil {
		return nil, err
	}

	l.log.Info("manual movement recorded",
		zap.String("movement_id", entry.ID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	l.advisor.Committed(ctx, Event{
		Action:  "movement_recorded",
		Actor:   actor,
		Data:    entry,
		Message: fmt.Sprintf("%s annotated lot '%s'", actor.Name, product.LotCode),
	})
	return entry, nil
}

func (l *movementLedger) History(ctx context.Context, productID uuid.UUID) ([]model.Movement, error) {
	if _, err := l.productRepo.FindByID(ctx, productID); err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	return l.movementRepo.FindByProduct(ctx, productID)
}

func (l *movementLedger) List(ctx context.Context, filter repository.MovementFilter) ([]model.Movement, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalid("unknown movement type %q", filter.Type)
	}
	return l.movementRepo.FindAll(ctx, filter)
}

// engineMovement builds a verified, automatic ledger entry for a state change.
func engineMovement(t model.MovementType, p *model.Product, actor Actor, from, to *uuid.UUID, quantity int, weight float64, opts Options, at time.Time) *model.Movement {
	return &model.Movement{
		Type:       t,
		ProductID:  p.ID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		FromSlotID: copyID(from),
		ToSlotID:   copyID(to),
		Quantity:   quantity,
		Weight:     model.RoundWeight(weight),
		Reason:     opts.Reason,
		Notes:      opts.Notes,
		OccurredAt: at,
		Automatic:  true,
		Verified:   true,
	}
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
