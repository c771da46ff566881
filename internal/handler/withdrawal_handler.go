package handler

import (
	"go-seedvault/internal/model"
	"go-seedvault/internal/service"

	"github.com/gofiber/fiber/v2"
)

type WithdrawalHandler struct {
	service service.WithdrawalService
}

func NewWithdrawalHandler(s service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{service: s}
}

type ResolveWithdrawalRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// GET /api/v1/withdrawals?status=PENDING
func (h *WithdrawalHandler) GetRequests(c *fiber.Ctx) error {
	requests, err := h.service.ListRequests(c.UserContext(), model.WithdrawalStatus(c.Query("status")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": requests})
}

// GET /api/v1/withdrawals/:id
func (h *WithdrawalHandler) GetRequest(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	request, err := h.service.GetRequest(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": request})
}

// POST /api/v1/withdrawals
func (h *WithdrawalHandler) Request(c *fiber.Ctx) error {
	var req service.CreateWithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidJSON)
	}
	result, err := h.service.RequestWithdrawal(c.UserContext(), &req, getActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Withdrawal requested", "data": result})
}

// POST /api/v1/withdrawals/:id/confirm
func (h *WithdrawalHandler) Confirm(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ResolveWithdrawalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, errInvalidJSON)
		}
	}
	result, err := h.service.ConfirmWithdrawal(c.UserContext(), id, getActor(c), req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Withdrawal confirmed", "data": result})
}

// POST /api/v1/withdrawals/:id/cancel
func (h *WithdrawalHandler) Cancel(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ResolveWithdrawalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, errInvalidJSON)
		}
	}
	result, err := h.service.CancelWithdrawal(c.UserContext(), id, getActor(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Withdrawal canceled", "data": result})
}
