package service

import (
	"errors"
	"fmt"
	"strings"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/pkg/validator"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrRequestNotFound        = errors.New("withdrawal request not found")
	ErrChamberNotFound        = errors.New("chamber not found")
	ErrSeedTypeNotFound       = errors.New("seed type not found")
	ErrSlotOccupied           = errors.New("slot is occupied")
	ErrChamberInactive        = errors.New("chamber is not active")
	ErrSeedTypeInactive       = errors.New("seed type is not active")
	ErrInsufficientCapacity   = errors.New("insufficient slot capacity")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrForbidden              = errors.New("actor lacks the required capability")
	ErrSeparationOfDuties     = errors.New("requester cannot confirm their own withdrawal")
	ErrValidation             = errors.New("validation failed")
	ErrSafetyMarginExceeded   = errors.New("placement exceeds the slot safety margin")
)

// OccupantSummary describes the product currently holding a slot.
type OccupantSummary struct {
	ProductID   uuid.UUID           `json:"product_id"`
	LotCode     string              `json:"lot_code"`
	TotalWeight float64             `json:"total_weight"`
	Status      model.ProductStatus `json:"status"`
}

type SlotOccupiedError struct {
	SlotID   uuid.UUID        `json:"slot_id"`
	Occupant *OccupantSummary `json:"occupant,omitempty"`
}

func (e *SlotOccupiedError) Error() string {
	if e.Occupant != nil {
		return fmt.Sprintf("slot %s is occupied by lot %s (%s)", e.SlotID, e.Occupant.LotCode, e.Occupant.ProductID)
	}
	return fmt.Sprintf("slot %s is occupied", e.SlotID)
}

func (e *SlotOccupiedError) Is(target error) bool { return target == ErrSlotOccupied }

// SlotSuggestion is a free slot offered when the requested one is too small.
type SlotSuggestion struct {
	SlotID      uuid.UUID         `json:"slot_id"`
	Coordinates model.Coordinates `json:"coordinates"`
	MaxCapacity float64           `json:"max_capacity"`
}

type InsufficientCapacityError struct {
	SlotID       uuid.UUID        `json:"slot_id"`
	Required     float64          `json:"required"`
	Available    float64          `json:"available"`
	Deficit      float64          `json:"deficit"`
	Alternatives []SlotSuggestion `json:"alternatives"`
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("slot %s needs %.3f kg but only %.3f kg is available (deficit %.3f kg)",
		e.SlotID, e.Required, e.Available, e.Deficit)
}

func (e *InsufficientCapacityError) Is(target error) bool { return target == ErrInsufficientCapacity }

type InvalidTransitionError struct {
	Entity string `json:"entity"`
	From   string `json:"from"`
	Action string `json:"action"`
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %s", e.Action, e.Entity, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type ConcurrentModificationError struct {
	Entity   string    `json:"entity"`
	ID       uuid.UUID `json:"id"`
	Expected int64     `json:"expected_version"`
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected version %d)", e.Entity, e.ID, e.Expected)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

type ValidationError struct {
	Fields []*validator.ErrorResponse `json:"fields,omitempty"`
	Msg    string                     `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return "validation failed: " + e.Msg
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("field '%s' failed on tag '%s'", f.FailedField, f.Tag))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// validate runs the struct validator and wraps failures in a *ValidationError.
func validate(req interface{}) error {
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// notFoundAs maps repository.ErrNotFound to the given domain sentinel.
func notFoundAs(err, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}

func staleAs(err error, entity string, id uuid.UUID, expected int64) error {
	if errors.Is(err, repository.ErrStaleVersion) {
		return &ConcurrentModificationError{Entity: entity, ID: id, Expected: expected}
	}
	return err
}

// AdvisoryError reports a failure of post-commit side work. It is logged and
// counted, never returned to the caller of a committed operation.
type AdvisoryError struct {
	Channel string
	Event   string
	Err     error
}

func (e *AdvisoryError) Error() string {
	return fmt.Sprintf("advisory %s failed for %s: %v", e.Channel, e.Event, e.Err)
}

func (e *AdvisoryError) Unwrap() error { return e.Err }

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, ErrSlotNotFound):
		return "SLOT_NOT_FOUND"
	case errors.Is(err, ErrProductNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, ErrRequestNotFound):
		return "REQUEST_NOT_FOUND"
	case errors.Is(err, ErrChamberNotFound):
		return "CHAMBER_NOT_FOUND"
	case errors.Is(err, ErrSeedTypeNotFound):
		return "SEED_TYPE_NOT_FOUND"
	case errors.Is(err, ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, ErrSlotOccupied):
		return "SLOT_OCCUPIED"
	case errors.Is(err, ErrChamberInactive):
		return "CHAMBER_INACTIVE"
	case errors.Is(err, ErrSeedTypeInactive):
		return "SEED_TYPE_INACTIVE"
	case errors.Is(err, ErrInsufficientCapacity):
		return "INSUFFICIENT_CAPACITY"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrSeparationOfDuties):
		return "SEPARATION_OF_DUTIES"
	case errors.Is(err, ErrSafetyMarginExceeded):
		return "SAFETY_MARGIN_EXCEEDED"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrUserInactive):
		return "USER_INACTIVE"
	case errors.Is(err, ErrEmailExists):
		return "EMAIL_EXISTS"
	case errors.Is(err, ErrChamberCodeExists):
		return "CHAMBER_CODE_EXISTS"
	case errors.Is(err, ErrRoleNotFound):
		return "ROLE_NOT_FOUND"
	case errors.Is(err, ErrWrongPassword):
		return "WRONG_PASSWORD"
	case errors.Is(err, ErrSessionReplaced):
		return "SESSION_REPLACED"
	default:
		return "INTERNAL"
	}
}
