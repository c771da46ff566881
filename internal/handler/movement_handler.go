package handler

import (
	"time"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
)

type MovementHandler struct {
	ledger service.MovementLedger
}

func NewMovementHandler(l service.MovementLedger) *MovementHandler {
	return &MovementHandler{ledger: l}
}

// GET /api/v1/movements?product_id=&slot_id=&type=&from=&to=&limit=&offset=
// from and to are RFC3339 timestamps.
func (h *MovementHandler) GetMovements(c *fiber.Ctx) error {
	filter := repository.MovementFilter{
		Type:   model.MovementType(c.Query("type")),
		Limit:  queryInt(c, "limit", 100),
		Offset: queryInt(c, "offset", 0),
	}
	var err error
	if filter.ProductID, err = queryUUID(c, "product_id"); err != nil {
		return respondError(c, err)
	}
	if filter.SlotID, err = queryUUID(c, "slot_id"); err != nil {
		return respondError(c, err)
	}
	if filter.From, err = queryTime(c, "from"); err != nil {
		return respondError(c, err)
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return respondError(c, err)
	}

	movements, err := h.ledger.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": movements})
}

// POST /api/v1/movements/manual
func (h *MovementHandler) RecordManual(c *fiber.Ctx) error {
	var req service.ManualMovementRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	movement, err := h.ledger.RecordManual(c.UserContext(), &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Movement recorded", "data": movement})
}

func queryTime(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &service.ValidationError{Msg: name + " must be an RFC3339 timestamp"}
	}
	return &t, nil
}
