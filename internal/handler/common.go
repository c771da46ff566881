package handler

import (
	"errors"
	"strconv"

	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// getActor builds the engine actor from the locals set by RequireAuth.
func getActor(c *fiber.Ctx) service.Actor {
	actor := service.Actor{Name: "Unknown"}
	if id, ok := c.Locals("user_id").(string); ok {
		actor.ID, _ = uuid.Parse(id)
	}
	if name, ok := c.Locals("user_name").(string); ok && name != "" {
		actor.Name = name
	}
	if privileges, ok := c.Locals("user_privileges").([]string); ok {
		actor.Capabilities = privileges
	}
	return actor
}

func getUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals("user_id").(string)
	if !ok {
		return "system"
	}
	return userID
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, &service.ValidationError{Msg: "invalid " + name}
	}
	return id, nil
}

func queryUUID(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &service.ValidationError{Msg: "invalid " + name}
	}
	return &id, nil
}

var errInvalidJSON = &service.ValidationError{Msg: "invalid JSON body"}

// OperationRequest carries the shared knobs of lifecycle endpoints.
type OperationRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
	Force           bool   `json:"force"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes"`
}

func (r OperationRequest) options() service.Options {
	return service.Options{
		ExpectedVersion: r.ExpectedVersion,
		Force:           r.Force,
		Reason:          r.Reason,
		Notes:           r.Notes,
	}
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidQuantity):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionReplaced):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrSeparationOfDuties),
		errors.Is(err, service.ErrUserInactive):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrSlotNotFound), errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrRequestNotFound), errors.Is(err, service.ErrChamberNotFound),
		errors.Is(err, service.ErrSeedTypeNotFound), errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRoleNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInsufficientCapacity):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSlotOccupied), errors.Is(err, service.ErrChamberInactive),
		errors.Is(err, service.ErrSeedTypeInactive), errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrConcurrentModification), errors.Is(err, service.ErrSafetyMarginExceeded),
		errors.Is(err, service.ErrEmailExists), errors.Is(err, service.ErrChamberCodeExists):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrWrongPassword):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error", "code"} plus the structured details the
// error carries.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error(), "code": service.Code(err)}
	if status == fiber.StatusInternalServerError {
		body["error"] = "Internal server error"
	}

	var occupied *service.SlotOccupiedError
	var capacity *service.InsufficientCapacityError
	var transition *service.InvalidTransitionError
	var conflict *service.ConcurrentModificationError
	var validation *service.ValidationError
	switch {
	case errors.As(err, &occupied):
		body["details"] = occupied
	case errors.As(err, &capacity):
		body["details"] = capacity
	case errors.As(err, &transition):
		body["details"] = transition
	case errors.As(err, &conflict):
		body["details"] = conflict
	case errors.As(err, &validation):
		body["details"] = validation
	}
	return c.Status(status).JSON(body)
}
