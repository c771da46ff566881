package handler

import (
	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"
	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ProductHandler struct {
	service   service.ProductService
	readModel service.ReadModelService
}

func NewProductHandler(s service.ProductService, rm service.ReadModelService) *ProductHandler {
	return &ProductHandler{service: s, readModel: rm}
}

type PlaceRequest struct {
	OperationRequest
	SlotID uuid.UUID `json:"slot_id"`
}

type PartialMoveRequest struct {
	OperationRequest
	SlotID   uuid.UUID `json:"slot_id"`
	Quantity int       `json:"quantity"`
}

type QuantityRequest struct {
	OperationRequest
	Quantity int `json:"quantity"`
}

// GET /api/v1/products?status=&chamber_id=&slot_id=&lot_code=&limit=&offset=
func (h *ProductHandler) GetProducts(c *fiber.Ctx) error {
	chamberID, err := queryUUID(c, "chamber_id")
	if err != nil {
		return respondError(c, err)
	}
	slotID, err := queryUUID(c, "slot_id")
	if err != nil {
		return respondError(c, err)
	}
	products, err := h.service.ListProducts(c.UserContext(), repository.ProductFilter{
		Status:    model.ProductStatus(c.Query("status")),
		ChamberID: chamberID,
		SlotID:    slotID,
		LotCode:   c.Query("lot_code"),
		Limit:     queryInt(c, "limit", 0),
		Offset:    queryInt(c, "offset", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": products})
}

// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	view, err := h.readModel.ProductView(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": view})
}

// GET /api/v1/products/:id/history
func (h *ProductHandler) GetHistory(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	movements, err := h.service.GetHistory(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": movements})
}

// POST /api/v1/products
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req service.CreateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.CreateProduct(c.UserContext(), &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Product created", "data": result})
}

// POST /api/v1/products/:id/place
func (h *ProductHandler) Place(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req PlaceRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.Place(c.UserContext(), id, req.SlotID, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Product placed", "data": result})
}

// POST /api/v1/products/:id/move
func (h *ProductHandler) Move(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req PlaceRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.Move(c.UserContext(), id, req.SlotID, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	message := "Product moved"
	if result.SameLocation {
		message = "Product already in this slot"
	}
	return c.JSON(fiber.Map{"message": message, "data": result})
}

// POST /api/v1/products/:id/partial-move
func (h *ProductHandler) PartialMove(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req PartialMoveRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.PartialMove(c.UserContext(), id, req.Quantity, req.SlotID, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Product split", "data": result})
}

// POST /api/v1/products/:id/exit
func (h *ProductHandler) PartialExit(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req QuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.PartialExit(c.UserContext(), id, req.Quantity, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Stock taken out", "data": result})
}

// POST /api/v1/products/:id/stock
func (h *ProductHandler) AddStock(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req QuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.AddStock(c.UserContext(), id, req.Quantity, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Stock added", "data": result})
}

// POST /api/v1/products/:id/remove
func (h *ProductHandler) Remove(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req OperationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, errInvalidJSON)
		}
	}
	result, err := h.service.Remove(c.UserContext(), id, getActor(c), req.options())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Product removed", "data": result})
}
