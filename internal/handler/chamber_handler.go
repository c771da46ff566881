package handler

import (
	"strconv"

	"go-seedvault/internal/model"
	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ChamberHandler struct {
	chambers  service.ChamberService
	capacity  service.CapacityService
	readModel service.ReadModelService
}

func NewChamberHandler(chambers service.ChamberService, capacity service.CapacityService, rm service.ReadModelService) *ChamberHandler {
	return &ChamberHandler{chambers: chambers, capacity: capacity, readModel: rm}
}

type UpdateChamberStatusRequest struct {
	Status model.ChamberStatus `json:"status"`
}

type SeedTypeActiveRequest struct {
	Active bool `json:"active"`
}

// GET /api/v1/chambers
func (h *ChamberHandler) GetChambers(c *fiber.Ctx) error {
	chambers, err := h.chambers.ListChambers(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": chambers})
}

// POST /api/v1/chambers
func (h *ChamberHandler) CreateChamber(c *fiber.Ctx) error {
	var req service.CreateChamberRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	chamber, err := h.chambers.CreateChamber(c.UserContext(), &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Chamber created", "data": chamber})
}

// PUT /api/v1/chambers/:id/status
func (h *ChamberHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req UpdateChamberStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	chamber, err := h.chambers.UpdateStatus(c.UserContext(), id, req.Status, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Chamber status updated", "data": chamber})
}

// GET /api/v1/chambers/:id/map
func (h *ChamberHandler) GetMap(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	snapshot, err := h.readModel.ChamberMap(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

// GET /api/v1/chambers/:id/occupancy
func (h *ChamberHandler) GetOccupancy(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	occ, err := h.readModel.Occupancy(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": occ})
}

// POST /api/v1/chambers/:id/slots
func (h *ChamberHandler) GenerateSlots(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req service.GenerateSlotsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	slots, err := h.chambers.GenerateSlots(c.UserContext(), id, &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Slots generated", "created": len(slots), "data": slots})
}

// GET /api/v1/slots/:id
func (h *ChamberHandler) GetSlot(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	slot, err := h.chambers.GetSlot(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": slot})
}

// GET /api/v1/slots/:id/capacity?weight=250
func (h *ChamberHandler) CheckCapacity(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	weight, err := strconv.ParseFloat(c.Query("weight"), 64)
	if err != nil {
		return respondError(c, &service.ValidationError{Msg: "weight must be a number"})
	}
	check, err := h.capacity.ValidateCapacity(c.UserContext(), id, weight)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": check})
}

// GET /api/v1/slots/:id/adjacent?radius=1
func (h *ChamberHandler) GetAdjacent(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	adjacency, err := h.capacity.FindAdjacent(c.UserContext(), id, queryInt(c, "radius", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": adjacency})
}

// GET /api/v1/seed-types
func (h *ChamberHandler) GetSeedTypes(c *fiber.Ctx) error {
	seedTypes, err := h.chambers.ListSeedTypes(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": seedTypes})
}

// POST /api/v1/seed-types
func (h *ChamberHandler) CreateSeedType(c *fiber.Ctx) error {
	var req service.CreateSeedTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	seedType, err := h.chambers.CreateSeedType(c.UserContext(), &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Seed type created", "data": seedType})
}

// PUT /api/v1/seed-types/:id/active
func (h *ChamberHandler) SetSeedTypeActive(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req SeedTypeActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	if err := h.chambers.SetSeedTypeActive(c.UserContext(), id, req.Active, getActor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Seed type updated"})
}
