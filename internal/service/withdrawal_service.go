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

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req *CreateWithdrawalRequest, actor Actor) (*WithdrawalResult, error)
	ConfirmWithdrawal(ctx context.Context, requestID uuid.UUID, actor Actor, notes string) (*WithdrawalResult, error)
	CancelWithdrawal(ctx context.Context, requestID uuid.UUID, actor Actor, reason string) (*WithdrawalResult, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	ListRequests(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error)
}

type CreateWithdrawalRequest struct {
	ProductID       uuid.UUID            `json:"product_id" validate:"uuid_required"`
	Kind            model.WithdrawalKind `json:"kind" validate:"required,oneof=TOTAL PARTIAL"`
	Quantity        *int                 `json:"quantity" validate:"omitempty,gt=0"`
	Reason          string               `json:"reason" validate:"max=255"`
	Notes           string               `json:"notes"`
	ExpectedVersion *int64               `json:"expected_version"`
}

type WithdrawalResult struct {
	Request  *model.WithdrawalRequest `json:"request"`
	Product  *model.Product           `json:"product"`
	Movement *model.Movement          `json:"movement,omitempty"`
}

type WithdrawalServiceDeps struct {
	DB          *gorm.DB
	Withdrawals repository.WithdrawalRepository
	Products    repository.ProductRepository
	Slots       repository.SlotRepository
	Ledger      MovementLedger
	Advisor     *Advisor
	Policy      Policy
	Logger      *zap.Logger
}

type withdrawalService struct {
	db          *gorm.DB
	withdrawals repository.WithdrawalRepository
	products    repository.ProductRepository
	slots       repository.SlotRepository
	ledger      MovementLedger
	advisor     *Advisor
	policy      Policy
	log         *zap.Logger
}

func NewWithdrawalService(deps WithdrawalServiceDeps) WithdrawalService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &withdrawalService{
		db:          deps.DB,
		withdrawals: deps.Withdrawals,
		products:    deps.Products,
		slots:       deps.Slots,
		ledger:      deps.Ledger,
		advisor:     deps.Advisor,
		policy:      deps.Policy,
		log:         log,
	}
}

func (s *withdrawalService) RequestWithdrawal(ctx context.Context, req *CreateWithdrawalRequest, actor Actor) (result *WithdrawalResult, err error) {
	defer s.advisor.Observe("request_withdrawal", time.Now(), &err)

	// 1. Capability and request shape
	if !actor.Can(model.PrivWithdrawalRequest) {
		return nil, ErrForbidden
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. Product must be placed, at the version the caller saw
		product, err := s.products.Load(tx, req.ProductID)
		if err != nil {
			return notFoundAs(err, ErrProductNotFound)
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != product.Version {
			return &ConcurrentModificationError{Entity: "product", ID: product.ID, Expected: *req.ExpectedVersion}
		}
		if product.Status != model.StatusPlaced {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "request withdrawal of"}
		}

		var qty *int
		if req.Kind == model.WithdrawalPartial {
			if req.Quantity == nil || *req.Quantity <= 0 || *req.Quantity >= product.Quantity {
				return fmt.Errorf("%w: partial withdrawal needs 0 < quantity < %d", ErrInvalidQuantity, product.Quantity)
			}
			q := *req.Quantity
			qty = &q
		}

		// 3. Create the PENDING request and park the product
		now := time.Now().UTC()
		request := &model.WithdrawalRequest{
			ProductID:         product.ID,
			RequesterID:       actor.ID,
			Kind:              req.Kind,
			RequestedQuantity: qty,
			Status:            model.WithdrawalPending,
			RequestedAt:       now,
			Reason:            req.Reason,
			Notes:             req.Notes,
		}
		request.CreatedBy = actor.auditID()
		request.UpdatedBy = actor.auditID()
		if err := s.withdrawals.Create(tx, request); err != nil {
			return err
		}

		expected := product.Version
		product.Status = model.StatusAwaitingWithdrawal
		if err := s.products.UpdateVersioned(tx, product, actor.auditID()); err != nil {
			return staleAs(err, "product", product.ID, expected)
		}

		if product.SlotID != nil {
			if slot, err := s.slots.Load(tx, *product.SlotID); err == nil {
				chamberID = slot.ChamberID
			}
		}
		result = &WithdrawalResult{Request: request, Product: product}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "withdrawal_requested", actor, result, chamberID,
		fmt.Sprintf("%s requested a %s withdrawal of lot '%s'", actor.Name, result.Request.Kind, result.Product.LotCode))
	return result, nil
}

func (s *withdrawalService) ConfirmWithdrawal(ctx context.Context, requestID uuid.UUID, actor Actor, notes string) (result *WithdrawalResult, err error) {
	defer s.advisor.Observe("confirm_withdrawal", time.Now(), &err)

	if !actor.Can(model.PrivWithdrawalConfirm) {
		return nil, ErrForbidden
	}

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Request must still be pending and confirmed by someone else
		request, err := s.withdrawals.Load(tx, requestID)
		if err != nil {
			return notFoundAs(err, ErrRequestNotFound)
		}
		if request.Status != model.WithdrawalPending {
			return &InvalidTransitionError{Entity: "withdrawal_request", From: string(request.Status), Action: "confirm"}
		}
		if s.policy.RequireDistinctConfirmer && request.RequesterID == actor.ID {
			return ErrSeparationOfDuties
		}

		product, err := s.products.Load(tx, request.ProductID)
		if err != nil {
			return notFoundAs(err, ErrProductNotFound)
		}
		if product.Status != model.StatusAwaitingWithdrawal {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "withdraw"}
		}
		if product.SlotID == nil {
			return fmt.Errorf("product %s awaiting withdrawal has no slot", product.ID)
		}
		slot, err := s.slots.Load(tx, *product.SlotID)
		if err != nil {
			return notFoundAs(err, ErrSlotNotFound)
		}
		slotVersion := slot.Version

		// 2. Apply the withdrawal to slot and product
		now := time.Now().UTC()
		quantity := request.Quantity(product.Quantity)
		weight := model.ComputeWeight(quantity, product.WeightPerUnit)
		if request.Kind == model.WithdrawalTotal {
			quantity = product.Quantity
			weight = product.TotalWeight
			if err := s.slots.Release(tx, slot); err != nil {
				return staleAs(err, "slot", slot.ID, slotVersion)
			}
			product.Status = model.StatusWithdrawn
			product.SlotID = nil
		} else {
			if quantity <= 0 || quantity >= product.Quantity {
				return fmt.Errorf("%w: cannot withdraw %d of %d units", ErrInvalidQuantity, quantity, product.Quantity)
			}
			product.SetQuantity(product.Quantity - quantity)
			if err := s.slots.SetWeight(tx, slot, product.TotalWeight); err != nil {
				return staleAs(err, "slot", slot.ID, slotVersion)
			}
			product.Status = model.StatusPlaced
		}
		product.LastMovementAt = &now

		expected := product.Version
		if err := s.products.UpdateVersioned(tx, product, actor.auditID()); err != nil {
			return staleAs(err, "product", product.ID, expected)
		}

		// 3. Close the request and record the WITHDRAWAL
		request.Status = model.WithdrawalConfirmed
		request.ConfirmedBy = copyID(&actor.ID)
		request.ResolvedAt = &now
		if notes != "" {
			request.Notes = notes
		}
		if err := s.withdrawals.Resolve(tx, request, actor.auditID()); err != nil {
			return staleAs(err, "withdrawal_request", request.ID, 0)
		}

		mv := engineMovement(model.MovementWithdrawal, product, actor, &slot.ID, nil, quantity, weight,
			Options{Reason: request.Reason, Notes: notes}, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		chamberID = slot.ChamberID
		result = &WithdrawalResult{Request: request, Product: product, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "withdrawal_confirmed", actor, result, chamberID,
		fmt.Sprintf("%s confirmed withdrawal of lot '%s'", actor.Name, result.Product.LotCode))
	return result, nil
}

func (s *withdrawalService) CancelWithdrawal(ctx context.Context, requestID uuid.UUID, actor Actor, reason string) (result *WithdrawalResult, err error) {
	defer s.advisor.Observe("cancel_withdrawal", time.Now(), &err)

	if !actor.Can(model.PrivWithdrawalRequest) {
		return nil, ErrForbidden
	}

	var chamberID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := s.withdrawals.Load(tx, requestID)
		if err != nil {
			return notFoundAs(err, ErrRequestNotFound)
		}
		if request.Status != model.WithdrawalPending {
			return &InvalidTransitionError{Entity: "withdrawal_request", From: string(request.Status), Action: "cancel"}
		}
		product, err := s.products.Load(tx, request.ProductID)
		if err != nil {
			return notFoundAs(err, ErrProductNotFound)
		}
		if product.Status != model.StatusAwaitingWithdrawal {
			return &InvalidTransitionError{Entity: "product", From: string(product.Status), Action: "cancel withdrawal of"}
		}

		now := time.Now().UTC()
		request.Status = model.WithdrawalCanceled
		request.CanceledBy = copyID(&actor.ID)
		request.ResolvedAt = &now
		if reason != "" {
			request.Reason = reason
		}
		if err := s.withdrawals.Resolve(tx, request, actor.auditID()); err != nil {
			return staleAs(err, "withdrawal_request", request.ID, 0)
		}

		expected := product.Version
		product.Status = model.StatusPlaced
		product.LastMovementAt = &now
		if err := s.products.UpdateVersioned(tx, product, actor.auditID()); err != nil {
			return staleAs(err, "product", product.ID, expected)
		}

		// Compensating entry so the ledger explains the status round trip.
		mv := engineMovement(model.MovementAdjustment, product, actor, product.SlotID, product.SlotID, 0, 0,
			Options{Reason: request.Reason}, now)
		if err := s.ledger.Append(tx, mv); err != nil {
			return err
		}

		if product.SlotID != nil {
			if slot, err := s.slots.Load(tx, *product.SlotID); err == nil {
				chamberID = slot.ChamberID
			}
		}
		result = &WithdrawalResult{Request: request, Product: product, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "withdrawal_canceled", actor, result, chamberID,
		fmt.Sprintf("%s canceled withdrawal of lot '%s'", actor.Name, result.Product.LotCode))
	return result, nil
}

func (s *withdrawalService) GetRequest(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	request, err := s.withdrawals.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrRequestNotFound)
	}
	return request, nil
}

func (s *withdrawalService) ListRequests(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	switch status {
	case "", model.WithdrawalPending, model.WithdrawalConfirmed, model.WithdrawalCanceled:
	default:
		return nil, invalid("unknown withdrawal status %q", status)
	}
	return s.withdrawals.FindAll(ctx, status)
}

func (s *withdrawalService) committed(ctx context.Context, action string, actor Actor, result *WithdrawalResult, chamberID uuid.UUID, message string) {
	s.log.Info("withdrawal committed",
		zap.String("action", action),
		zap.String("request_id", result.Request.ID.String()),
		zap.String("product_id", result.Product.ID.String()),
		zap.String("actor_id", actor.ID.String()),
	)
	s.advisor.Committed(ctx, Event{
		Action:     action,
		Actor:      actor,
		ChamberIDs: []uuid.UUID{chamberID},
		Data:       result,
		Message:    message,
	})
}
